// Package api はバックエンドの各エンドポイントへの型付きラッパーを提供する。
// 全リクエストはGateway経由で実行され、エラー分類とトークン処理はそちらに委ねる。
package api

import (
	"context"
	"net/url"

	"github.com/hitoshi/drivebook/internal/model"
)

// HTTPGateway はAPIリクエスト実行のインターフェース。
// gateway.Clientを抽象化してテスタビリティを向上させる。
type HTTPGateway interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

// Auth は認証関連エンドポイントのクライアント。
type Auth struct {
	gw HTTPGateway
}

// NewAuth はAuthクライアントを生成する。
func NewAuth(gw HTTPGateway) *Auth {
	return &Auth{gw: gw}
}

// Login はログインエンドポイントを呼び出し、トークン応答を返す。
func (a *Auth) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp model.TokenResponse
	if err := a.gw.Post(ctx, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup はサインアップエンドポイントを呼び出し、トークン応答を返す。
func (a *Auth) Signup(ctx context.Context, req model.SignupRequest) (*model.TokenResponse, error) {
	var resp model.TokenResponse
	if err := a.gw.Post(ctx, "/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CurrentUser は現在の認証ユーザーのプロフィールを取得する。
func (a *Auth) CurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := a.gw.Get(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Sessions はセッション関連エンドポイントのクライアント。
type Sessions struct {
	gw HTTPGateway
}

// NewSessions はSessionsクライアントを生成する。
func NewSessions(gw HTTPGateway) *Sessions {
	return &Sessions{gw: gw}
}

// List は予約可能な全セッションを取得する。
func (s *Sessions) List(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.gw.Get(ctx, "/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Search はサーバー側の検索エンドポイントを呼び出す。
func (s *Sessions) Search(ctx context.Context, query string) ([]model.Session, error) {
	var sessions []model.Session
	path := "/sessions/search?query=" + url.QueryEscape(query)
	if err := s.gw.Get(ctx, path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Get はセッションを個別に取得する。
func (s *Sessions) Get(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := s.gw.Get(ctx, "/sessions/"+url.PathEscape(id), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Register はセッションへの登録を実行し、作成された予約を返す。
func (s *Sessions) Register(ctx context.Context, sessionID string) (*model.Registration, error) {
	var reg model.Registration
	if err := s.gw.Post(ctx, "/sessions/"+url.PathEscape(sessionID)+"/register", nil, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Registrations は予約関連エンドポイントのクライアント。
type Registrations struct {
	gw HTTPGateway
}

// NewRegistrations はRegistrationsクライアントを生成する。
func NewRegistrations(gw HTTPGateway) *Registrations {
	return &Registrations{gw: gw}
}

// List は現在のユーザーの全予約を取得する。
func (r *Registrations) List(ctx context.Context) ([]model.Registration, error) {
	var regs []model.Registration
	if err := r.gw.Get(ctx, "/registrations", &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

// Get は予約を個別に取得する。
func (r *Registrations) Get(ctx context.Context, id string) (*model.Registration, error) {
	var reg model.Registration
	if err := r.gw.Get(ctx, "/registrations/"+url.PathEscape(id), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Cancel は予約を削除する。
func (r *Registrations) Cancel(ctx context.Context, id string) error {
	return r.gw.Delete(ctx, "/registrations/"+url.PathEscape(id))
}
