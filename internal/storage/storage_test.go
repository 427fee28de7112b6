package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/drivebook/internal/model"
)

// TestFileStore_SetGetRoundTrip は保存した値が読み出せることを検証する。
func TestFileStore_SetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	if err := s.Set("key1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, ok := s.Get("key1")
	if !ok {
		t.Fatal("Get returned ok=false for existing key")
	}
	if string(v) != `{"a":1}` {
		t.Errorf("Get = %q, want %q", v, `{"a":1}`)
	}
}

// TestFileStore_SurvivesRestart はプロセス再起動相当の再オープンで値が残ることを検証する。
func TestFileStore_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s1, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := s1.Set("token", []byte(`"abc"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// 別インスタンスで開き直す
	s2, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	v, ok := s2.Get("token")
	if !ok {
		t.Fatal("value did not survive reopen")
	}
	if string(v) != `"abc"` {
		t.Errorf("Get after reopen = %q, want %q", v, `"abc"`)
	}
}

// TestFileStore_GetMissingKey は未登録キーの取得を検証する。
func TestFileStore_GetMissingKey(t *testing.T) {
	s, err := OpenFile(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("Get returned ok=true for missing key")
	}
}

// TestFileStore_Delete は削除後にキーが消えることと冪等性を検証する。
func TestFileStore_Delete(t *testing.T) {
	s, err := OpenFile(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	if err := s.Set("key", []byte(`1`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := s.Get("key"); ok {
		t.Error("key still present after Delete")
	}

	// 2回目の削除もエラーにならない
	if err := s.Delete("key"); err != nil {
		t.Errorf("second Delete returned error: %v", err)
	}
}

// TestOpenFile_CorruptedFile は壊れたファイルがエラーになることを検証する。
func TestOpenFile_CorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := OpenFile(path); err == nil {
		t.Error("expected error for corrupted storage file, got nil")
	}
}

// TestTokenStore_SaveAndRestore はトークンの永続化と復元を検証する。
func TestTokenStore_SaveAndRestore(t *testing.T) {
	ts := NewTokenStore(NewMemory())

	if ts.Session() != nil {
		t.Error("Session should be nil before any save")
	}
	if ts.Token() != "" {
		t.Error("Token should be empty before any save")
	}

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := ts.Save(&model.CredentialSession{Token: "jwt-token", ExpiresAt: exp}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	session := ts.Session()
	if session == nil {
		t.Fatal("Session is nil after save")
	}
	if session.Token != "jwt-token" {
		t.Errorf("Token = %q, want %q", session.Token, "jwt-token")
	}
	if !session.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, exp)
	}
}

// TestTokenStore_Clear はクリア後にセッションが消えることを検証する。
func TestTokenStore_Clear(t *testing.T) {
	ts := NewTokenStore(NewMemory())

	if err := ts.Save(&model.CredentialSession{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := ts.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if ts.Session() != nil {
		t.Error("Session should be nil after Clear")
	}
}

// TestTokenStore_Valid は期限判定を検証する。
func TestTokenStore_Valid(t *testing.T) {
	ts := NewTokenStore(NewMemory())
	now := time.Now()

	if ts.Valid(now) {
		t.Error("empty token store should not be valid")
	}

	if err := ts.Save(&model.CredentialSession{Token: "tok", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !ts.Valid(now) {
		t.Error("token within expiry should be valid")
	}
	if ts.Valid(now.Add(2 * time.Hour)) {
		t.Error("expired token should not be valid")
	}
}
