package credential

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/drivebook/internal/model"
	"github.com/hitoshi/drivebook/internal/storage"
)

// --- モック ---

type mockAuthAPI struct {
	loginFn       func(ctx context.Context, email, password string) (*model.TokenResponse, error)
	signupFn      func(ctx context.Context, req model.SignupRequest) (*model.TokenResponse, error)
	currentUserFn func(ctx context.Context) (*model.User, error)

	loginCalls       int
	currentUserCalls int
}

func (m *mockAuthAPI) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	m.loginCalls++
	return m.loginFn(ctx, email, password)
}
func (m *mockAuthAPI) Signup(ctx context.Context, req model.SignupRequest) (*model.TokenResponse, error) {
	return m.signupFn(ctx, req)
}
func (m *mockAuthAPI) CurrentUser(ctx context.Context) (*model.User, error) {
	m.currentUserCalls++
	return m.currentUserFn(ctx)
}

func testUser() *model.User {
	return &model.User{ID: "u1", Email: "test@example.com", FirstName: "Test", LastName: "User"}
}

func newTestStore(api AuthAPI) (*Store, *storage.TokenStore, *storage.MemoryStore) {
	mem := storage.NewMemory()
	tokens := storage.NewTokenStore(mem)
	s := New(api, tokens, mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, tokens, mem
}

// --- テスト ---

// TestLogin_Success はログイン成功時の状態遷移とトークン永続化を検証する。
func TestLogin_Success(t *testing.T) {
	api := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: "jwt-token", ExpiresIn: 86400000}, nil
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, tokens, _ := newTestStore(api)

	if err := s.Login(context.Background(), "test@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if !s.IsAuthenticated() {
		t.Error("IsAuthenticated should be true after login")
	}
	snap := s.Snapshot()
	if snap.User == nil || snap.User.ID != "u1" {
		t.Errorf("User = %+v", snap.User)
	}
	if snap.Error != "" {
		t.Errorf("Error = %q, want empty", snap.Error)
	}
	if snap.IsLoading {
		t.Error("IsLoading should be false after login completes")
	}

	session := tokens.Session()
	if session == nil || session.Token != "jwt-token" {
		t.Fatalf("token not persisted: %+v", session)
	}
	// expiresIn（86400000ミリ秒 = 24時間）が反映されている
	if until := time.Until(session.ExpiresAt); until < 23*time.Hour || until > 25*time.Hour {
		t.Errorf("ExpiresAt %v not around 24h from now", session.ExpiresAt)
	}
}

// TestLogin_Failure はログイン失敗時にUnauthenticatedのまま
// エラーメッセージが記録されることを検証する。
func TestLogin_Failure(t *testing.T) {
	api := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*model.TokenResponse, error) {
			return nil, model.NewValidationError("メールアドレスまたはパスワードが正しくありません")
		},
	}
	s, tokens, _ := newTestStore(api)

	err := s.Login(context.Background(), "test@example.com", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}

	if s.IsAuthenticated() {
		t.Error("IsAuthenticated should be false after failed login")
	}
	if snap := s.Snapshot(); snap.Error == "" {
		t.Error("error message should be recorded")
	}
	if tokens.Session() != nil {
		t.Error("no token should be persisted on failed login")
	}
	// 自動リトライは行われない
	if api.loginCalls != 1 {
		t.Errorf("loginCalls = %d, want 1", api.loginCalls)
	}
}

// TestLogin_ProfileFetchFailure はトークン取得後のプロフィール取得失敗を検証する。
func TestLogin_ProfileFetchFailure(t *testing.T) {
	api := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: "jwt-token", ExpiresIn: 3600000}, nil
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return nil, model.NewServerError(500)
		},
	}
	s, _, _ := newTestStore(api)

	if err := s.Login(context.Background(), "test@example.com", "password"); err == nil {
		t.Fatal("expected error")
	}
	if s.IsAuthenticated() {
		t.Error("IsAuthenticated should be false when profile fetch fails")
	}
}

// TestRegister_AuthenticatesImmediately はサインアップ成功時に
// 別途のログインなしで認証されることを検証する。
func TestRegister_AuthenticatesImmediately(t *testing.T) {
	api := &mockAuthAPI{
		signupFn: func(ctx context.Context, req model.SignupRequest) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: "new-token", ExpiresIn: 86400000}, nil
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, tokens, _ := newTestStore(api)

	req := model.SignupRequest{Email: "test@example.com", Password: "password", FirstName: "Test", LastName: "User"}
	if err := s.Register(context.Background(), req); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !s.IsAuthenticated() {
		t.Error("IsAuthenticated should be true after signup")
	}
	if tokens.Token() != "new-token" {
		t.Errorf("Token = %q, want new-token", tokens.Token())
	}
	if api.loginCalls != 0 {
		t.Error("signup must not perform a separate login round-trip")
	}
}

// TestRegister_ProfileFallback はプロフィール取得失敗時に
// サインアップ内容からユーザーが構成されることを検証する。
func TestRegister_ProfileFallback(t *testing.T) {
	api := &mockAuthAPI{
		signupFn: func(ctx context.Context, req model.SignupRequest) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: "new-token", ExpiresIn: 3600000}, nil
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return nil, model.NewServerError(503)
		},
	}
	s, _, _ := newTestStore(api)

	req := model.SignupRequest{Email: "a@b.c", FirstName: "Hanako", LastName: "Yamada"}
	if err := s.Register(context.Background(), req); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	snap := s.Snapshot()
	if snap.User == nil {
		t.Fatal("User should be set from signup payload")
	}
	if snap.User.FullName() != "Hanako Yamada" {
		t.Errorf("FullName = %q", snap.User.FullName())
	}
}

// TestLogout_AlwaysSucceeds はトークン破棄が失敗してもログアウトが
// ローカルで完了することを検証する。
func TestLogout_AlwaysSucceeds(t *testing.T) {
	api := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: "tok", ExpiresIn: 3600000}, nil
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, tokens, _ := newTestStore(api)

	if err := s.Login(context.Background(), "test@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	s.Logout()

	if s.IsAuthenticated() {
		t.Error("IsAuthenticated should be false after logout")
	}
	if tokens.Session() != nil {
		t.Error("token should be purged on logout")
	}
	if snap := s.Snapshot(); snap.User != nil || snap.Error != "" {
		t.Errorf("snapshot after logout = %+v", snap)
	}
}

// TestCheckAuthStatus_NoToken はトークン不在時にネットワーク呼び出しなしで
// falseを返すことを検証する。
func TestCheckAuthStatus_NoToken(t *testing.T) {
	api := &mockAuthAPI{
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, _, _ := newTestStore(api)

	if s.CheckAuthStatus(context.Background()) {
		t.Error("CheckAuthStatus should return false without a token")
	}
	if api.currentUserCalls != 0 {
		t.Errorf("currentUserCalls = %d, want 0 (no network call)", api.currentUserCalls)
	}
}

// TestCheckAuthStatus_ExpiredToken は期限切れトークンが破棄されることを検証する。
func TestCheckAuthStatus_ExpiredToken(t *testing.T) {
	api := &mockAuthAPI{
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, tokens, _ := newTestStore(api)

	if err := tokens.Save(&model.CredentialSession{Token: "old", ExpiresAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if s.CheckAuthStatus(context.Background()) {
		t.Error("CheckAuthStatus should return false for expired token")
	}
	if tokens.Session() != nil {
		t.Error("expired token should be purged")
	}
	if api.currentUserCalls != 0 {
		t.Error("expired token must not trigger a network call")
	}
}

// TestCheckAuthStatus_ValidToken は有効トークンでの状態復元と冪等性を検証する。
func TestCheckAuthStatus_ValidToken(t *testing.T) {
	api := &mockAuthAPI{
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, tokens, _ := newTestStore(api)

	if err := tokens.Save(&model.CredentialSession{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 保護画面のマウントごとに繰り返し呼ばれる想定
	for i := 0; i < 3; i++ {
		if !s.CheckAuthStatus(context.Background()) {
			t.Fatalf("CheckAuthStatus #%d should return true", i+1)
		}
	}
	if !s.IsAuthenticated() {
		t.Error("IsAuthenticated should be true after successful check")
	}
}

// TestCheckAuthStatus_VerificationFailure は検証失敗時のトークン破棄を検証する。
func TestCheckAuthStatus_VerificationFailure(t *testing.T) {
	api := &mockAuthAPI{
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return nil, model.NewAuthenticationError(401)
		},
	}
	s, tokens, _ := newTestStore(api)

	if err := tokens.Save(&model.CredentialSession{Token: "revoked", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if s.CheckAuthStatus(context.Background()) {
		t.Error("CheckAuthStatus should return false when verification fails")
	}
	if tokens.Session() != nil {
		t.Error("token should be purged when verification fails")
	}
	if s.IsAuthenticated() {
		t.Error("IsAuthenticated should be false after failed verification")
	}
}

// TestLoginLogoutCheckRoundTrip はログイン→ログアウト→状態確認の往復を検証する。
func TestLoginLogoutCheckRoundTrip(t *testing.T) {
	api := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: "tok", ExpiresIn: 86400000}, nil
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, _, _ := newTestStore(api)

	if err := s.Login(context.Background(), "test@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	s.Logout()

	if s.CheckAuthStatus(context.Background()) {
		t.Error("CheckAuthStatus after logout should return false")
	}
	if err := s.RequireSession(); !model.IsAuthenticationError(err) {
		t.Errorf("RequireSession after logout = %v, want authentication error", err)
	}
}

// TestRequireSession はローカルセッションの先行チェックを検証する。
func TestRequireSession(t *testing.T) {
	s, tokens, _ := newTestStore(&mockAuthAPI{})

	if err := s.RequireSession(); !model.IsAuthenticationError(err) {
		t.Errorf("RequireSession without token = %v, want authentication error", err)
	}

	if err := tokens.Save(&model.CredentialSession{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.RequireSession(); err != nil {
		t.Errorf("RequireSession with valid token = %v, want nil", err)
	}
}

// TestPersistToken_JWTExpiryFallback はexpiresIn不在時にJWTのexpクレームから
// 有効期限が導出されることを検証する。
func TestPersistToken_JWTExpiryFallback(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	api := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: signed}, nil // expiresIn無し
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}
	s, tokens, _ := newTestStore(api)

	if err := s.Login(context.Background(), "test@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	session := tokens.Session()
	if session == nil {
		t.Fatal("token not persisted")
	}
	if !session.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v (from JWT exp claim)", session.ExpiresAt, exp)
	}
}

// TestRestore は永続化スナップショットからのユーザー復元を検証する。
func TestRestore(t *testing.T) {
	mem := storage.NewMemory()
	tokens := storage.NewTokenStore(mem)
	api := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*model.TokenResponse, error) {
			return &model.TokenResponse{Token: "tok", ExpiresIn: 86400000}, nil
		},
		currentUserFn: func(ctx context.Context) (*model.User, error) {
			return testUser(), nil
		},
	}

	s1 := New(api, tokens, mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s1.Login(context.Background(), "test@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// プロセス再起動相当: 同じストレージから新しいストアを構築
	s2 := New(api, tokens, mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s2.Restore()

	if !s2.IsAuthenticated() {
		t.Error("restored store should be authenticated")
	}
	if snap := s2.Snapshot(); snap.User == nil || snap.User.Email != "test@example.com" {
		t.Errorf("restored user = %+v", snap.User)
	}
}
