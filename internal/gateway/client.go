// Package gateway はバックエンドAPIへの単一のリクエスト関数を提供する。
// Bearerトークンの付与、ハードタイムアウト、HTTPステータスの型付きエラーへの
// 分類、防御的なJSONパースを一箇所に集約する。
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/hitoshi/drivebook/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxErrorBodySize はエラーボディ解析時の読み取り上限。
const maxErrorBodySize = 64 * 1024

// TokenSource は永続化トークンへのアクセスを抽象化する。
// GatewayはClearのみを書き込み操作として呼び出す。
// 有効なトークンの書き込みはCredential Storeの専権。
type TokenSource interface {
	Token() string
	Clear() error
}

// MetricsRecorder はリクエストメトリクス収集のインターフェース。
type MetricsRecorder interface {
	RecordRequest(method string, status int, duration time.Duration)
	RecordAuthFailure()
	RecordTimeout()
}

// noopMetrics はメトリクス収集を行わないMetricsRecorder実装。
type noopMetrics struct{}

func (noopMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopMetrics) RecordAuthFailure()                                              {}
func (noopMetrics) RecordTimeout()                                                  {}

// ClientConfig はClientの生成に必要な設定をまとめた構造体。
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration // リクエストごとのハードタイムアウト
	Tokens     TokenSource
	Metrics    MetricsRecorder // nilの場合は収集しない
	Logger     *slog.Logger    // nilの場合はslog.Default()
	RateLimit  rate.Limit      // 0以下の場合はレート制限なし
	RateBurst  int
	HTTPClient *http.Client // nilの場合はデフォルトクライアント
}

// Client はバックエンドAPIへのリクエストを実行する。
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout: timeout,
		http:    httpClient,
		tokens:  cfg.Tokens,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// isAuthEndpoint はトークンを付与してはならないエンドポイントかを判定する。
// ログインとサインアップには古い・不在のトークンを決して送らない。
func isAuthEndpoint(path string) bool {
	return path == "/auth/login" || path == "/auth/signup"
}

// Do はAPIリクエストを実行し、成功時はレスポンスJSONをoutにデコードする。
// outがnilの場合、またはレスポンスボディがJSONでない・空の場合はデコードしない。
// 非2xx応答はmodel.APIErrorに分類して返す。
// 401/403応答では永続化トークンを破棄する（ネットワーク層からの
// 資格情報無効化はここが唯一の経路）。
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait cancelled: %w", err)
		}
	}

	// リクエストごとのハードタイムアウト。超過時は進行中の呼び出しを中断する。
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if !isAuthEndpoint(path) && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		// タイムアウトによる中断はTimeoutErrorとして分類する
		if errors.Is(err, context.DeadlineExceeded) {
			c.metrics.RecordTimeout()
			c.logger.Warn("リクエストがタイムアウトしました",
				slog.String("method", method),
				slog.String("path", path),
				slog.Duration("timeout", c.timeout),
			)
			return model.NewTimeoutError()
		}
		c.logger.Error("HTTPリクエストに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordRequest(method, resp.StatusCode, duration)

	switch ClassifyStatus(resp.StatusCode) {
	case RequestResultAuthFailure:
		// 401/403: 無効なトークンを破棄してから失敗させる
		if c.tokens != nil {
			if clearErr := c.tokens.Clear(); clearErr != nil {
				c.logger.Error("トークンの破棄に失敗しました",
					slog.String("error", clearErr.Error()),
				)
			}
		}
		c.metrics.RecordAuthFailure()
		c.logger.Warn("認証エラー応答を受信しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.NewAuthenticationError(resp.StatusCode)

	case RequestResultNotFound:
		return model.NewNotFoundError()

	case RequestResultServerError:
		c.logger.Error("サーバーエラー応答を受信しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.NewServerError(resp.StatusCode)

	case RequestResultClientError:
		return c.classifyClientError(resp)
	}

	// 2xx: Content-Typeがapplication/jsonの場合のみボディをデコードする。
	// 空ボディは空オブジェクトとして扱い、非JSONボディは無視する。
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}

	return nil
}

// classifyClientError は4xx応答（401/403/404以外）のエラーボディを解析する。
// messageフィールドが取得できた場合はそれを検証エラーとして表示し、
// できない場合はステータス行にフォールバックする。
func (c *Client) classifyClientError(resp *http.Response) error {
	fallback := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return model.NewRequestFailedError(resp.StatusCode, fallback)
	}

	var errBody struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errBody); err != nil || errBody.Message == "" {
		return model.NewRequestFailedError(resp.StatusCode, fallback)
	}

	return model.NewValidationError(errBody.Message)
}

// Get はGETリクエストを実行する。
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post はPOSTリクエストを実行する。
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Delete はDELETEリクエストを実行する。
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}
