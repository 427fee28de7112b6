// Package app は依存関係のワイヤリングと起動モードの振り分けを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/drivebook/internal/api"
	"github.com/hitoshi/drivebook/internal/catalog"
	"github.com/hitoshi/drivebook/internal/config"
	"github.com/hitoshi/drivebook/internal/credential"
	"github.com/hitoshi/drivebook/internal/fixture"
	"github.com/hitoshi/drivebook/internal/gateway"
	"github.com/hitoshi/drivebook/internal/ledger"
	"github.com/hitoshi/drivebook/internal/logger"
	"github.com/hitoshi/drivebook/internal/metrics"
	"github.com/hitoshi/drivebook/internal/news"
	"github.com/hitoshi/drivebook/internal/security"
	"github.com/hitoshi/drivebook/internal/storage"
)

// App は同期レイヤーの全ストアを束ねるコンテナ。
// 1つのストレージと1つのゲートウェイを共有する形で各ストアを組み立てる。
type App struct {
	Credentials *credential.Store
	Catalog     *catalog.Store
	Ledger      *ledger.Store
	News        *news.Fetcher // お知らせフィード未設定の場合はnil

	registry *prometheus.Registry
	logger   *slog.Logger
}

// New は設定とストレージから全依存関係をワイヤリングしたAppを生成する。
func New(cfg *config.Config, store storage.Store, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}

	tokens := storage.NewTokenStore(store)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	client := gateway.NewClient(gateway.ClientConfig{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.RequestTimeout,
		Tokens:    tokens,
		Metrics:   collector,
		Logger:    log,
		RateLimit: rate.Limit(cfg.RateLimitRPS),
		RateBurst: cfg.RateLimitBurst,
	})

	authAPI := api.NewAuth(client)
	sessionsAPI := api.NewSessions(client)
	registrationsAPI := api.NewRegistrations(client)

	credentials := credential.New(authAPI, tokens, store, log)
	sessionCatalog := catalog.New(sessionsAPI, store, log)
	registrationLedger := ledger.New(
		registrationsAPI, sessionsAPI, sessionCatalog, credentials, store, log,
	)
	sessionCatalog.SetMetrics(collector)
	registrationLedger.SetMetrics(collector)

	app := &App{
		Credentials: credentials,
		Catalog:     sessionCatalog,
		Ledger:      registrationLedger,
		registry:    registry,
		logger:      log,
	}

	if cfg.NewsFeedURL != "" {
		app.News = news.NewFetcher(news.Config{
			FeedURL:     cfg.NewsFeedURL,
			Guard:       security.NewFeedGuard(),
			Sanitizer:   security.NewContentSanitizer(),
			Logger:      log,
			Timeout:     cfg.NewsTimeout,
			MaxBodySize: cfg.NewsMaxSize,
		})
	}

	return app
}

// Restore は永続化された状態を全ストアに読み込む。起動時に1回呼び出す。
func (a *App) Restore() {
	a.Credentials.Restore()
	a.Catalog.Restore()
	a.Ledger.Restore()
}

// MetricsHandler はこのAppのメトリクスを公開するHTTPハンドラーを返す。
func (a *App) MetricsHandler() http.Handler {
	return metrics.Handler(a.registry)
}

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// fixture はバックエンド設定（API_URL）を必要としないため、
	// フル初期化をスキップする
	if cmd == CommandFixture {
		logger.SetupDefault(w)
		port := os.Getenv("FIXTURE_PORT")
		if port == "" {
			port = "8080"
		}
		return runFixture(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("api_url", cfg.APIBaseURL),
	)

	return runSmoke(cfg)
}

// runFixture は検証用インメモリバックエンドを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runFixture(port string) error {
	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	srv := fixture.NewServer(slog.Default(),
		fixture.WithMetricsHandler(metrics.Handler(registry)),
	)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("fixture server starting",
			slog.String("addr", server.Addr),
			slog.String("demo_email", fixture.DemoEmail),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down fixture server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("fixture server stopped gracefully")
	return nil
}

// runSmoke は設定されたバックエンドに対して同期フロー一式を実行する。
// ログイン → セッション取得 → 登録 → 予約一覧 → キャンセル → ログアウト。
// どこかで失敗した場合はエラーを返す。
func runSmoke(cfg *config.Config) error {
	store, err := storage.OpenFile(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	a := New(cfg, store, slog.Default())
	a.Restore()

	email := cfg.SmokeEmail
	password := cfg.SmokePassword
	if email == "" {
		email = fixture.DemoEmail
		password = fixture.DemoPassword
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := a.Credentials.Login(ctx, email, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	slog.Info("smoke: logged in", slog.String("email", email))

	if err := a.Catalog.FetchSessions(ctx); err != nil {
		return fmt.Errorf("session fetch failed: %w", err)
	}
	sessions := a.Catalog.Snapshot().Sessions
	slog.Info("smoke: sessions fetched", slog.Int("count", len(sessions)))
	if len(sessions) == 0 {
		return fmt.Errorf("no sessions available")
	}

	if err := a.Ledger.Register(ctx, sessions[0].ID); err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	regs := a.Ledger.Snapshot().Registrations
	slog.Info("smoke: registered", slog.Int("registrations", len(regs)))
	if len(regs) == 0 {
		return fmt.Errorf("registration missing after register")
	}

	if err := a.Ledger.CancelRegistration(ctx, regs[0].ID); err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	slog.Info("smoke: cancelled", slog.String("registration_id", regs[0].ID))

	a.Credentials.Logout()
	slog.Info("smoke: logged out")

	if a.News != nil {
		announcements, err := a.News.Fetch(ctx)
		if err != nil {
			slog.Warn("smoke: announcement fetch failed", slog.String("error", err.Error()))
		} else {
			slog.Info("smoke: announcements fetched", slog.Int("count", len(announcements)))
		}
	}

	slog.Info("smoke: all checks passed")
	return nil
}
