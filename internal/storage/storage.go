// Package storage はクライアント状態のローカル永続化を提供する。
// プロセス再起動をまたいで保持されるkey-valueストアで、
// 認証トークンと各ストアのスナップショットを格納する。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 永続化キー。ストア名をキーとしてスナップショットを保存する。
const (
	KeyAuthToken         = "auth_token"
	KeyUserStore         = "user-storage"
	KeySessionStore      = "session-storage"
	KeyRegistrationStore = "registration-storage"
)

// Store はkey-value永続化のインターフェース。
type Store interface {
	// Get はキーに対応する値を返す。存在しない場合はok=falseを返す。
	Get(key string) (value []byte, ok bool)
	// Set はキーに値を保存する。
	Set(key string, value []byte) error
	// Delete はキーを削除する。存在しないキーの削除はエラーとしない。
	Delete(key string) error
}

// FileStore はJSONファイルにバックアップされるStore実装。
// 書き込みごとに一時ファイル経由のアトミックな置き換えを行う。
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]jsoniter.RawMessage
}

// OpenFile は指定パスのFileStoreを開く。
// ファイルが存在しない場合は空のストアとして開始する。
// ファイルが壊れている場合はエラーを返す（黙って捨てない）。
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]jsoniter.RawMessage),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("storage file is corrupted: %w", err)
	}

	return s, nil
}

// Get はキーに対応する値を返す。
func (s *FileStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	return v, true
}

// Set はキーに値を保存し、即座にファイルへ書き出す。
func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = jsoniter.RawMessage(value)
	return s.flushLocked()
}

// Delete はキーを削除し、即座にファイルへ書き出す。
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flushLocked()
}

// flushLocked は現在の内容をアトミックにファイルへ書き出す。
// 呼び出し側でロックを保持していること。
func (s *FileStore) flushLocked() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to marshal storage: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".drivebook-storage-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace storage file: %w", err)
	}

	return nil
}

// MemoryStore はテストおよび一時利用向けのインメモリStore実装。
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory は空のMemoryStoreを生成する。
func NewMemory() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Get はキーに対応する値を返す。
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Set はキーに値を保存する。
func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}

// Delete はキーを削除する。
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}
