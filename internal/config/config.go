package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL     string
	RequestTimeout time.Duration

	// ローカル永続化
	StoragePath string

	// アウトバウンドのレート制限（req/sec）
	RateLimitRPS   float64
	RateLimitBurst int

	// お知らせフィード
	NewsFeedURL string
	NewsTimeout time.Duration
	NewsMaxSize int64

	// フィクスチャサーバー
	FixturePort string

	// スモークテスト用の資格情報
	SmokeEmail    string
	SmokePassword string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = os.Getenv("API_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 10*time.Second)
	cfg.StoragePath = getEnvString("STORAGE_PATH", "drivebook_state.json")
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", 8)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 16)
	cfg.NewsFeedURL = getEnvString("NEWS_FEED_URL", "")
	cfg.NewsTimeout = getEnvDuration("NEWS_TIMEOUT", 10*time.Second)
	cfg.NewsMaxSize = getEnvInt64("NEWS_MAX_SIZE", 5242880)
	cfg.FixturePort = getEnvString("FIXTURE_PORT", "8080")
	cfg.SmokeEmail = getEnvString("SMOKE_EMAIL", "")
	cfg.SmokePassword = getEnvString("SMOKE_PASSWORD", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
