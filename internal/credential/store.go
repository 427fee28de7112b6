// Package credential は認証状態の管理を提供する。
// 状態機械: Unauthenticated → Authenticating → Authenticated、
// ログアウトまたはGateway経由の認証失敗で Authenticated → Unauthenticated。
// 認証済みかどうかは常に「ユーザーが非nilか」から導出され、
// 独立したフラグとしては保持しない。
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/drivebook/internal/model"
	"github.com/hitoshi/drivebook/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultTokenTTL はバックエンドが有効期間を返さなかった場合の既定値。
const defaultTokenTTL = 24 * time.Hour

// AuthAPI は認証エンドポイントのインターフェース。
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*model.TokenResponse, error)
	Signup(ctx context.Context, req model.SignupRequest) (*model.TokenResponse, error)
	CurrentUser(ctx context.Context) (*model.User, error)
}

// TokenPersistence は永続化トークンへのアクセスのインターフェース。
// 有効なトークンの書き込みはこのストアの専権で、Gatewayはクリアのみを行う。
type TokenPersistence interface {
	Session() *model.CredentialSession
	Save(session *model.CredentialSession) error
	Clear() error
}

// Snapshot はPresentation Bindingsに公開されるストアの状態。
// Errorはユーザー向け表示テキストで、表示後または次の成功時にクリアされる。
type Snapshot struct {
	User      *model.User
	IsLoading bool
	Error     string
}

// Store は認証状態を保持するCredential Store。
type Store struct {
	api    AuthAPI
	tokens TokenPersistence
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	user    *model.User
	loading bool
	errMsg  string
}

// New はStoreを生成する。
func New(api AuthAPI, tokens TokenPersistence, store storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:    api,
		tokens: tokens,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Restore は永続化されたユーザースナップショットを復元する。
// アプリケーション起動時に1回呼び出す。復元されたユーザーは
// CheckAuthStatusによる検証まで暫定的なものとして扱われる。
func (s *Store) Restore() {
	data, ok := s.store.Get(storage.KeyUserStore)
	if !ok {
		return
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		s.logger.Warn("ユーザースナップショットの復元に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
}

// Snapshot は現在のストア状態を返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{User: s.user, IsLoading: s.loading, Error: s.errMsg}
}

// IsAuthenticated は認証済みかを返す。ユーザーの有無から常に導出される。
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// RequireSession は有効な認証セッションの存在を確認する。
// トークンが不在または期限切れの場合、ネットワーク呼び出しを行わずに
// 認証エラーを返す。認証が必要な操作の前段チェックとして使用する。
func (s *Store) RequireSession() error {
	if !s.tokens.Session().Valid(s.now()) {
		return model.NewSessionExpiredError()
	}
	return nil
}

// ClearError は表示済みのエラーメッセージをクリアする。
func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// Login はログインを実行する。
// 成功時はトークンを永続化してからユーザープロフィールを取得し、
// Authenticated状態に遷移する。失敗時はUnauthenticatedのまま
// エラーメッセージを記録し、自動リトライは行わない。
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.setLoading()

	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.setFailure(err)
		return fmt.Errorf("login failed: %w", err)
	}

	if err := s.persistToken(resp); err != nil {
		s.setFailure(err)
		return fmt.Errorf("login failed: %w", err)
	}

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.setFailure(err)
		return fmt.Errorf("failed to fetch user profile: %w", err)
	}

	s.setAuthenticated(user)
	s.logger.Info("ログインしました", slog.String("user_id", user.ID))
	return nil
}

// Register はサインアップを実行する。
// 成功時は返却された新しいトークンでそのまま認証する
// （別途のログイン往復は不要）。
func (s *Store) Register(ctx context.Context, req model.SignupRequest) error {
	s.setLoading()

	resp, err := s.api.Signup(ctx, req)
	if err != nil {
		s.setFailure(err)
		return fmt.Errorf("signup failed: %w", err)
	}

	if err := s.persistToken(resp); err != nil {
		s.setFailure(err)
		return fmt.Errorf("signup failed: %w", err)
	}

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		// プロフィール取得に失敗しても認証自体は成立しているため、
		// サインアップ内容からユーザーを構成する
		s.logger.Warn("サインアップ後のプロフィール取得に失敗しました",
			slog.String("error", err.Error()),
		)
		user = &model.User{
			Email:            req.Email,
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			Phone:            req.Phone,
			Age:              req.Age,
			TransmissionType: req.TransmissionType,
			CreatedAt:        s.now(),
		}
	}

	s.setAuthenticated(user)
	s.logger.Info("サインアップしました", slog.String("email", req.Email))
	return nil
}

// Logout はローカルのサインアウトを実行する。
// トークンとユーザーを破棄してUnauthenticatedに遷移する。
// ローカルのサインアウトは常に成功し、エラーを返さない。
func (s *Store) Logout() {
	if err := s.tokens.Clear(); err != nil {
		s.logger.Error("トークンの破棄に失敗しました", slog.String("error", err.Error()))
	}
	if err := s.store.Delete(storage.KeyUserStore); err != nil {
		s.logger.Error("ユーザースナップショットの削除に失敗しました", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.user = nil
	s.loading = false
	s.errMsg = ""
	s.mu.Unlock()

	s.logger.Info("ログアウトしました")
}

// CheckAuthStatus は永続化トークンの有効性を検証する。
// トークンが存在すればユーザープロフィールの取得で検証し、成功時は
// Authenticated状態を復元してtrueを返す。期限切れを含むあらゆる失敗時は
// トークンを破棄してUnauthenticatedに遷移し、falseを返す。
// 冪等であり、保護画面のマウントごとに繰り返し呼び出せる。
func (s *Store) CheckAuthStatus(ctx context.Context) bool {
	if !s.tokens.Session().Valid(s.now()) {
		s.invalidate()
		return false
	}

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.logger.Warn("認証状態の検証に失敗しました", slog.String("error", err.Error()))
		s.invalidate()
		return false
	}

	s.setAuthenticated(user)
	return true
}

// invalidate はトークンとユーザーを破棄してUnauthenticatedに遷移する。
func (s *Store) invalidate() {
	if err := s.tokens.Clear(); err != nil {
		s.logger.Error("トークンの破棄に失敗しました", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.user = nil
	s.loading = false
	s.mu.Unlock()
}

// persistToken はトークン応答から有効期限を算出して永続化する。
// 有効期限はexpiresIn（ミリ秒）を優先し、無い場合はJWTのexpクレーム、
// どちらも無い場合は既定のTTLを使用する。
func (s *Store) persistToken(resp *model.TokenResponse) error {
	if resp.Token == "" {
		return model.NewValidationError("サーバーがトークンを返しませんでした")
	}

	now := s.now()
	expiresAt := now.Add(defaultTokenTTL)

	switch {
	case resp.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Millisecond)
	default:
		if exp, ok := tokenExpiry(resp.Token); ok {
			expiresAt = exp
		}
	}

	return s.tokens.Save(&model.CredentialSession{Token: resp.Token, ExpiresAt: expiresAt})
}

// tokenExpiry はJWTのexpクレームから有効期限を取り出す。
// 署名検証は行わない（クライアントは検証鍵を持たないため、
// 期限は表示・先行チェック用のヒントとしてのみ使用する）。
func tokenExpiry(tokenString string) (time.Time, bool) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s *Store) setLoading() {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *Store) setFailure(err error) {
	s.mu.Lock()
	s.user = nil
	s.loading = false
	s.errMsg = model.UserMessage(err)
	s.mu.Unlock()
}

func (s *Store) setAuthenticated(user *model.User) {
	if data, err := json.Marshal(user); err == nil {
		if err := s.store.Set(storage.KeyUserStore, data); err != nil {
			s.logger.Error("ユーザースナップショットの保存に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}

	s.mu.Lock()
	s.user = user
	s.loading = false
	s.errMsg = ""
	s.mu.Unlock()
}
