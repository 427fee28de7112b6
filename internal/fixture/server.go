// Package fixture は開発・検証用のインメモリバックエンドを提供する。
// クライアントが依存する予約APIの挙動（認証、登録、キャンセル、404の扱い）を
// 本物のバックエンドなしで再現する。
package fixture

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/drivebook/internal/model"
	"github.com/hitoshi/drivebook/internal/schedule"
)

// tokenTTL は発行するトークンの有効期間。
const tokenTTL = 24 * time.Hour

// DemoEmail と DemoPassword はシードされるデモアカウントの認証情報。
const (
	DemoEmail    = "test@example.com"
	DemoPassword = "password"
)

// account はメールアドレスとパスワードを持つ登録済みユーザー。
type account struct {
	user     model.User
	password string
}

// Server はインメモリ状態を持つ検証用バックエンド。
type Server struct {
	logger *slog.Logger

	mu            sync.Mutex
	accounts      map[string]*account // email -> account
	tokens        map[string]string   // token -> userID
	sessions      []model.Session
	registrations map[string]model.Registration // id -> registration

	metricsHandler http.Handler
}

// Option はServerの生成オプション。
type Option func(*Server)

// WithMetricsHandler は/metricsで公開するハンドラーを設定する。
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithSessions はシードするセッション一覧を差し替える。
func WithSessions(sessions []model.Session) Option {
	return func(s *Server) { s.sessions = sessions }
}

// NewServer はデモアカウントとセッション一覧をシードしたServerを生成する。
func NewServer(logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:        logger,
		accounts:      make(map[string]*account),
		tokens:        make(map[string]string),
		sessions:      seedSessions(),
		registrations: make(map[string]model.Registration),
	}
	s.accounts[DemoEmail] = &account{
		user: model.User{
			ID:        uuid.New().String(),
			Email:     DemoEmail,
			FirstName: "太郎",
			LastName:  "山田",
			CreatedAt: time.Now(),
		},
		password: DemoPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// seedSessions は開発用の教習枠をシードする。
func seedSessions() []model.Session {
	base := time.Now().Truncate(time.Hour).Add(48 * time.Hour)
	return []model.Session{
		{
			ID:              uuid.New().String(),
			Datetime:        base,
			DurationMinutes: 50,
			MaxCapacity:     1,
			Price:           5500,
			InstructorID:    "instructor-1",
			Scenario:        &model.Scenario{ScenarioID: 1, Name: "市街地走行", EnvironmentType: "urban", Difficulty: "MEDIUM"},
			Location:        "第1コース",
			Topic:           "交差点の右左折",
			Status:          model.SessionStatusScheduled,
		},
		{
			ID:              uuid.New().String(),
			Datetime:        base.Add(2 * time.Hour),
			DurationMinutes: 50,
			MaxCapacity:     1,
			Price:           5500,
			InstructorID:    "instructor-2",
			Scenario:        &model.Scenario{ScenarioID: 2, Name: "縦列駐車", EnvironmentType: "course", Difficulty: "HARD"},
			Location:        "第2コース",
			Topic:           "縦列駐車と方向転換",
			Status:          model.SessionStatusScheduled,
		},
		{
			ID:              uuid.New().String(),
			Datetime:        base.Add(24 * time.Hour),
			DurationMinutes: 100,
			MaxCapacity:     2,
			Price:           11000,
			InstructorID:    "instructor-1",
			Scenario:        &model.Scenario{ScenarioID: 3, Name: "高速道路", EnvironmentType: "highway", Difficulty: "HARD"},
			Location:        "高速教習集合場所",
			Topic:           "高速道路の合流と車線変更",
			Notes:           "ETCカードは不要です",
			Status:          model.SessionStatusScheduled,
		},
	}
}

// Router は全エンドポイントを構成したchi.Routerを返す。
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/signup", s.handleSignup)
	})

	// 認証必須のルート
	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/me", s.handleMe)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/search", s.handleSearchSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/register", s.handleRegister)
		r.Get("/registrations", s.handleListRegistrations)
		r.Get("/registrations/{id}", s.handleGetRegistration)
		r.Delete("/registrations/{id}", s.handleCancelRegistration)
	})

	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	return r
}

// --- 認証 ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました。")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || acct.password != req.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "メールアドレスまたはパスワードが正しくありません。")
		return
	}
	token := s.issueTokenLocked(acct.user.ID)
	s.mu.Unlock()

	s.logger.Info("ログインしました", slog.String("email", req.Email))
	writeJSON(w, http.StatusOK, model.TokenResponse{
		Token:     token,
		ExpiresIn: tokenTTL.Milliseconds(),
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "メールアドレスとパスワードは必須です。")
		return
	}

	email := strings.ToLower(req.Email)

	s.mu.Lock()
	if _, exists := s.accounts[email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "このメールアドレスは既に登録されています。")
		return
	}
	acct := &account{
		user: model.User{
			ID:               uuid.New().String(),
			Email:            email,
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			CreatedAt:        time.Now(),
			Phone:            req.Phone,
			Age:              req.Age,
			TransmissionType: req.TransmissionType,
		},
		password: req.Password,
	}
	s.accounts[email] = acct
	token := s.issueTokenLocked(acct.user.ID)
	s.mu.Unlock()

	s.logger.Info("サインアップしました", slog.String("email", email))
	writeJSON(w, http.StatusCreated, model.TokenResponse{
		Token:     token,
		ExpiresIn: tokenTTL.Milliseconds(),
	})
}

// issueTokenLocked はトークンを発行する。呼び出し元がs.muを保持していること。
func (s *Server) issueTokenLocked(userID string) string {
	token := uuid.New().String()
	s.tokens[token] = userID
	return token
}

// bearerAuth はAuthorizationヘッダのBearerトークンを検証するミドルウェア。
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "認証が必要です。")
			return
		}

		s.mu.Lock()
		userID, valid := s.tokens[token]
		s.mu.Unlock()
		if !valid {
			writeError(w, http.StatusUnauthorized, "トークンが無効です。")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == userID {
			writeJSON(w, http.StatusOK, acct.user)
			return
		}
	}
	writeError(w, http.StatusNotFound, "ユーザーが見つかりません。")
}

// --- セッション ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sessions := make([]model.Session, len(s.sessions))
	copy(sessions, s.sessions)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSearchSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	s.mu.Lock()
	sessions := make([]model.Session, len(s.sessions))
	copy(sessions, s.sessions)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, schedule.FilterSessions(sessions, query))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.ID == id {
			writeJSON(w, http.StatusOK, session)
			return
		}
	}
	writeError(w, http.StatusNotFound, "セッションが見つかりません。")
}

// --- 予約 ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	var found bool
	for _, session := range s.sessions {
		if session.ID == sessionID {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "セッションが見つかりません。")
		return
	}

	for _, reg := range s.registrations {
		if reg.UserID == userID && reg.SessionID == sessionID {
			writeError(w, http.StatusBadRequest, "このセッションは既に予約済みです。")
			return
		}
	}

	reg := model.Registration{
		ID:            uuid.New().String(),
		UserID:        userID,
		SessionID:     sessionID,
		PaymentStatus: model.PaymentStatusPending,
		CreatedAt:     time.Now(),
	}
	s.registrations[reg.ID] = reg

	s.logger.Info("予約を作成しました",
		slog.String("registration_id", reg.ID),
		slog.String("session_id", sessionID),
	)
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	s.mu.Lock()
	// セッション詳細は埋め込まない。クライアント側の補完を前提とした
	// session_idのみの応答を返す。
	regs := make([]model.Registration, 0)
	for _, reg := range s.registrations {
		if reg.UserID == userID {
			regs = append(regs, reg)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, regs)
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok || reg.UserID != userID {
		writeError(w, http.StatusNotFound, "予約が見つかりません。")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleCancelRegistration(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	reg, ok := s.registrations[id]
	if !ok || reg.UserID != userID {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "予約が見つかりません。")
		return
	}
	delete(s.registrations, id)
	s.mu.Unlock()

	s.logger.Info("予約をキャンセルしました", slog.String("registration_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// --- レスポンスヘルパー ---

// errorResponse はクライアントがmessageフィールドを解釈するエラー応答。
type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
