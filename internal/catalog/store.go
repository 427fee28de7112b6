// Package catalog は予約可能セッションの読み取り専用キャッシュを提供する。
// 全件リフレッシュと部分一致検索をサポートする。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/drivebook/internal/model"
	"github.com/hitoshi/drivebook/internal/schedule"
	"github.com/hitoshi/drivebook/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionsAPI はセッションエンドポイントのインターフェース。
type SessionsAPI interface {
	List(ctx context.Context) ([]model.Session, error)
	Search(ctx context.Context, query string) ([]model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
}

// SyncMetrics は同期失敗の計測フック。metrics.Collectorが実装する。
type SyncMetrics interface {
	RecordSyncFailure(store string)
}

// Snapshot はPresentation Bindingsに公開されるストアの状態。
type Snapshot struct {
	Sessions  []model.Session
	IsLoading bool
	Error     string
}

// Store はセッションカタログ。
type Store struct {
	api     SessionsAPI
	store   storage.Store
	logger  *slog.Logger
	metrics SyncMetrics

	mu       sync.Mutex
	sessions []model.Session
	loading  bool
	errMsg   string
}

// New はStoreを生成する。
func New(api SessionsAPI, store storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{api: api, store: store, logger: logger}
}

// SetMetrics は同期失敗の計測フックを設定する。nilの場合は計測しない。
func (s *Store) SetMetrics(m SyncMetrics) {
	s.metrics = m
}

// Restore は永続化されたカタログスナップショットを復元する。
func (s *Store) Restore() {
	data, ok := s.store.Get(storage.KeySessionStore)
	if !ok {
		return
	}

	var sessions []model.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		s.logger.Warn("カタログスナップショットの復元に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
}

// Snapshot は現在のストア状態を返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]model.Session, len(s.sessions))
	copy(sessions, s.sessions)
	return Snapshot{Sessions: sessions, IsLoading: s.loading, Error: s.errMsg}
}

// ClearError は表示済みのエラーメッセージをクリアする。
func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// FetchSessions はローカルのセッション一覧をサーバーの現在の一覧で
// 丸ごと置き換える。マージや差分適用は行わず、最後の書き込みが勝つ。
// 失敗時は直前のキャッシュを保持したままエラーメッセージを記録し、
// 認証エラーの場合のみ呼び出し元に返す（ログイン画面への誘導が必要なため）。
func (s *Store) FetchSessions(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	sessions, err := s.api.List(ctx)
	if err != nil {
		s.logger.Error("セッション一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)

		s.mu.Lock()
		s.loading = false
		s.errMsg = model.UserMessage(err)
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordSyncFailure("sessions")
		}

		if model.IsAuthenticationError(err) {
			return fmt.Errorf("failed to fetch sessions: %w", err)
		}
		return nil
	}

	if sessions == nil {
		sessions = []model.Session{}
	}

	s.mu.Lock()
	s.sessions = sessions
	s.loading = false
	s.mu.Unlock()

	s.persist(sessions)
	return nil
}

// SearchSessions はサーバー側の検索エンドポイントに委譲し、
// 利用できない場合はローカルキャッシュの部分一致フィルタに
// フォールバックする。失敗時も空リストを返し、エラーは返さない。
func (s *Store) SearchSessions(ctx context.Context, query string) []model.Session {
	results, err := s.api.Search(ctx, query)
	if err == nil {
		if results == nil {
			return []model.Session{}
		}
		return results
	}

	s.logger.Warn("サーバー検索に失敗したためローカルフィルタにフォールバックします",
		slog.String("query", query),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	cached := make([]model.Session, len(s.sessions))
	copy(cached, s.sessions)
	s.mu.Unlock()

	return schedule.FilterSessions(cached, query)
}

// GetSessionByID はセッションを取得する。まずローカルキャッシュを参照し、
// 無ければサーバーから個別取得する。リモートにも存在しない場合は
// エラーではなくnilを返す。
func (s *Store) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			session := s.sessions[i]
			s.mu.Unlock()
			return &session, nil
		}
	}
	s.mu.Unlock()

	session, err := s.api.Get(ctx, id)
	if err != nil {
		if model.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch session %s: %w", id, err)
	}
	return session, nil
}

func (s *Store) persist(sessions []model.Session) {
	data, err := json.Marshal(sessions)
	if err != nil {
		return
	}
	if err := s.store.Set(storage.KeySessionStore, data); err != nil {
		s.logger.Error("カタログスナップショットの保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
