package storage

import (
	"fmt"
	"time"

	"github.com/hitoshi/drivebook/internal/model"
)

// TokenStore は永続化された認証セッション（トークンと有効期限）を管理する。
// 有効なトークンを書き込めるのはCredential Storeのみで、
// Gatewayは認証失敗時のクリアのみを行う。
type TokenStore struct {
	store Store
}

// NewTokenStore はTokenStoreを生成する。
func NewTokenStore(store Store) *TokenStore {
	return &TokenStore{store: store}
}

// Session は永続化された認証セッションを返す。
// 保存されていない場合や読み出せない場合はnilを返す。
func (t *TokenStore) Session() *model.CredentialSession {
	data, ok := t.store.Get(KeyAuthToken)
	if !ok {
		return nil
	}

	var session model.CredentialSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	if session.Token == "" {
		return nil
	}
	return &session
}

// Token は現在のトークン文字列を返す。セッションが無い場合は空文字列。
// 有効期限の検証は行わない（期限検証はCredential Store側の責務）。
func (t *TokenStore) Token() string {
	session := t.Session()
	if session == nil {
		return ""
	}
	return session.Token
}

// Save は認証セッションを永続化する。
func (t *TokenStore) Save(session *model.CredentialSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal credential session: %w", err)
	}
	if err := t.store.Set(KeyAuthToken, data); err != nil {
		return fmt.Errorf("failed to persist credential session: %w", err)
	}
	return nil
}

// Clear は永続化された認証セッションを破棄する。
func (t *TokenStore) Clear() error {
	return t.store.Delete(KeyAuthToken)
}

// Valid は現在のセッションが存在し期限内かを判定する。
func (t *TokenStore) Valid(now time.Time) bool {
	return t.Session().Valid(now)
}
