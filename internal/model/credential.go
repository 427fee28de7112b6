// Package model はドメインモデルを定義する。
package model

import "time"

// CredentialSession はローカルに永続化される認証セッションを表す。
// 不在または期限切れの場合、認証が必要な操作はネットワーク呼び出しを
// 行わずに失敗しなければならない。
type CredentialSession struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid はセッションが存在し、まだ期限内かを判定する。
func (s *CredentialSession) Valid(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}
	return now.Before(s.ExpiresAt)
}

// TokenResponse はログイン・サインアップエンドポイントの応答ボディ。
// ExpiresInはミリ秒単位の有効期間。
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}
