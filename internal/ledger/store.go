// Package ledger は現在のユーザーの予約台帳を管理する。
// サーバーを唯一の真実の源とし、登録・キャンセルはサーバー確認後に
// ローカル状態へ反映する。
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/drivebook/internal/model"
	"github.com/hitoshi/drivebook/internal/schedule"
	"github.com/hitoshi/drivebook/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RegistrationsAPI は予約エンドポイントのインターフェース。
type RegistrationsAPI interface {
	List(ctx context.Context) ([]model.Registration, error)
	Get(ctx context.Context, id string) (*model.Registration, error)
	Cancel(ctx context.Context, id string) error
}

// RegisterAPI はセッション登録エンドポイントのインターフェース。
type RegisterAPI interface {
	Register(ctx context.Context, sessionID string) (*model.Registration, error)
}

// SessionResolver は予約に埋め込むセッション詳細の解決手段。
// catalog.Storeが実装する。
type SessionResolver interface {
	GetSessionByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionGuard はネットワーク呼び出し前の認証セッション検証。
// credential.Storeが実装する。
type SessionGuard interface {
	RequireSession() error
}

// SyncMetrics は同期失敗の計測フック。metrics.Collectorが実装する。
type SyncMetrics interface {
	RecordSyncFailure(store string)
}

// Snapshot は予約台帳の現在の状態。
type Snapshot struct {
	Registrations []model.Registration
	IsLoading     bool
	Error         string
}

// Store はユーザーの予約台帳を保持するストア。
// 登録・キャンセルは必ずサーバー確認を先行させ、ローカル状態の
// 先行更新は行わない。
type Store struct {
	regs     RegistrationsAPI
	register RegisterAPI
	sessions SessionResolver
	guard    SessionGuard
	store    storage.Store
	logger   *slog.Logger
	metrics  SyncMetrics

	mu            sync.Mutex
	registrations []model.Registration
	loading       bool
	errMsg        string
	inflight      map[string]bool
}

// New はStoreを生成する。
func New(regs RegistrationsAPI, register RegisterAPI, sessions SessionResolver, guard SessionGuard, store storage.Store, logger *slog.Logger) *Store {
	return &Store{
		regs:     regs,
		register: register,
		sessions: sessions,
		guard:    guard,
		store:    store,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// SetMetrics は同期失敗の計測フックを設定する。nilの場合は計測しない。
func (s *Store) SetMetrics(m SyncMetrics) {
	s.metrics = m
}

// Restore は永続化された予約スナップショットを読み込む。
// 破損したデータは無視して空の台帳から開始する。
func (s *Store) Restore() {
	data, ok := s.store.Get(storage.KeyRegistrationStore)
	if !ok {
		return
	}
	var regs []model.Registration
	if err := json.Unmarshal(data, &regs); err != nil {
		s.logger.Warn("予約スナップショットの復元に失敗しました", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.registrations = regs
	s.mu.Unlock()
}

// Snapshot は現在の台帳状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := make([]model.Registration, len(s.registrations))
	copy(regs, s.registrations)
	return Snapshot{
		Registrations: regs,
		IsLoading:     s.loading,
		Error:         s.errMsg,
	}
}

// ClearError は表示済みのエラーメッセージをクリアする。
func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// GetRegistrationByID はローカル台帳から予約を返す。見つからない場合はnil。
func (s *Store) GetRegistrationByID(id string) *model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.registrations {
		if s.registrations[i].ID == id {
			reg := s.registrations[i]
			return &reg
		}
	}
	return nil
}

// Partition は台帳を開始日時で未来と過去に分割して返す。
func (s *Store) Partition(now time.Time) (upcoming, past []model.Registration) {
	s.mu.Lock()
	regs := make([]model.Registration, len(s.registrations))
	copy(regs, s.registrations)
	s.mu.Unlock()
	return schedule.Partition(regs, now)
}

// FetchUserRegistrations はサーバーから予約一覧を取得し、各予約の
// セッション詳細を補完したうえで台帳を全件置き換える。
// 取得失敗時は直前の台帳を保持し、認証エラーのみ呼び出し元へ返す。
// 個別セッションの補完失敗は予約自体を失わせない。
func (s *Store) FetchUserRegistrations(ctx context.Context) error {
	if err := s.guard.RequireSession(); err != nil {
		s.setFailure(err)
		return err
	}
	s.setLoading(true)

	regs, err := s.regs.List(ctx)
	if err != nil {
		s.setFailure(err)
		if model.IsAuthenticationError(err) {
			return err
		}
		return nil
	}

	for i := range regs {
		if regs[i].Session != nil || regs[i].SessionID == "" {
			continue
		}
		session, err := s.sessions.GetSessionByID(ctx, regs[i].SessionID)
		if err != nil {
			s.logger.Warn("セッション詳細の補完に失敗しました",
				slog.String("registration_id", regs[i].ID),
				slog.String("session_id", regs[i].SessionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		regs[i].Session = session
	}

	s.mu.Lock()
	s.registrations = regs
	s.loading = false
	s.errMsg = ""
	s.mu.Unlock()
	s.persist(regs)
	return nil
}

// Register はセッションへの登録を実行する。サーバーが登録を確認して
// 初めて台帳を再取得し、失敗時はローカル状態を変更せずエラーを返す。
// 同一セッションへの登録が進行中の場合は何もしない。
func (s *Store) Register(ctx context.Context, sessionID string) error {
	if err := s.guard.RequireSession(); err != nil {
		s.setFailure(err)
		return err
	}
	if !s.acquire(sessionID) {
		return nil
	}
	defer s.release(sessionID)

	s.setLoading(true)
	if _, err := s.register.Register(ctx, sessionID); err != nil {
		s.setFailure(err)
		return err
	}

	// サーバー確認後に一覧を再取得して正規の表現を取り込む。
	// 再取得の失敗は登録の成功を覆さないが、認証エラーだけは伝播する。
	if err := s.FetchUserRegistrations(ctx); err != nil {
		s.logger.Warn("登録後の予約一覧の再取得に失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		if model.IsAuthenticationError(err) {
			return err
		}
	}
	s.setLoading(false)
	return nil
}

// CancelRegistration は予約のキャンセルを実行する。サーバーが削除を
// 確認してからローカル台帳から取り除く。既にサーバーに存在しない
// 予約（404）は成功として扱い、ローカルからも取り除く。
// 同一予約のキャンセルが進行中の場合は何もしない。
func (s *Store) CancelRegistration(ctx context.Context, registrationID string) error {
	if err := s.guard.RequireSession(); err != nil {
		s.setFailure(err)
		return err
	}
	if !s.acquire(registrationID) {
		return nil
	}
	defer s.release(registrationID)

	s.setLoading(true)
	if err := s.regs.Cancel(ctx, registrationID); err != nil && !model.IsNotFoundError(err) {
		s.setFailure(err)
		return err
	}

	s.mu.Lock()
	kept := s.registrations[:0:0]
	for _, reg := range s.registrations {
		if reg.ID != registrationID {
			kept = append(kept, reg)
		}
	}
	s.registrations = kept
	s.loading = false
	s.errMsg = ""
	s.mu.Unlock()
	s.persist(kept)
	return nil
}

func (s *Store) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		s.logger.Debug("同一対象への操作が進行中のためスキップします", slog.String("id", id))
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *Store) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	if loading {
		s.errMsg = ""
	}
	s.mu.Unlock()
}

func (s *Store) setFailure(err error) {
	s.mu.Lock()
	s.loading = false
	s.errMsg = model.UserMessage(err)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordSyncFailure("registrations")
	}
}

func (s *Store) persist(regs []model.Registration) {
	data, err := json.Marshal(regs)
	if err != nil {
		return
	}
	if err := s.store.Set(storage.KeyRegistrationStore, data); err != nil {
		s.logger.Warn("予約スナップショットの永続化に失敗しました", slog.String("error", err.Error()))
	}
}
