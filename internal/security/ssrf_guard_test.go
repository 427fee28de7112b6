package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClient はSSRF防止付きHTTPクライアントの生成をテストする。
func TestNewSafeClient(t *testing.T) {
	guard := NewFeedGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	// safeurlはnet.DialerのControlフックで検証するため、標準のTransportではない
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport to be set")
	}
}

// TestNewSafeClientBlocksLoopback はSafeClientがループバックへのリクエストを
// ブロックすることをテストする。httptestサーバーは127.0.0.1で起動されるため、
// safeurlがブロックする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	guard := NewFeedGuard()
	client := guard.NewSafeClient(5 * time.Second)

	resp, err := client.Get(ts.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestValidateURL は静的URL検証の許可・拒否をテストする。
func TestValidateURL(t *testing.T) {
	guard := NewFeedGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開HTTPS URL", "https://example.com/news.xml", false},
		{"公開HTTP URL", "http://news.example.org/feed", false},
		{"プライベートIP 10.x", "http://10.0.0.1/feed", true},
		{"プライベートIP 172.16.x", "http://172.16.0.1/feed", true},
		{"プライベートIP 192.168.x", "http://192.168.1.100/feed", true},
		{"ループバック", "http://127.0.0.1/feed", true},
		{"localhost", "http://localhost/feed", true},
		{"リンクローカル", "http://169.254.0.1/feed", true},
		{"クラウドメタデータIP", "http://169.254.169.254/latest/meta-data/", true},
		{"ゼロアドレス", "http://0.0.0.0/feed", true},
		{"IPv6ループバック", "http://[::1]/feed", true},
		{"空URL", "", true},
		{"スキームなし", "not-a-url", true},
		{"ftpスキーム", "ftp://example.com/feed", true},
		{"fileスキーム", "file:///etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateURL(%q) should have returned error", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateURL(%q) returned error: %v", tt.url, err)
			}
		})
	}
}

// TestFeedGuardInterface はFeedGuardServiceインターフェースの適合を検証する。
func TestFeedGuardInterface(t *testing.T) {
	var _ FeedGuardService = NewFeedGuard()
}
