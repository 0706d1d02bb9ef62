package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Scope names, in read precedence order.
const (
	ScopeDurable   = "durable"
	ScopeEphemeral = "ephemeral"
	ScopeLegacy    = "legacy"
)

// ErrReadOnlyScope is returned when writing to a scope kept only for reads.
var ErrReadOnlyScope = errors.New("scope is read-only")

// Scope is one named location holding at most one bearer credential.
// Load returns "" when the scope holds nothing.
type Scope interface {
	Name() string
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// MemoryScope keeps the credential for the lifetime of the process.
type MemoryScope struct {
	name  string
	mu    sync.RWMutex
	token string
}

// NewMemoryScope creates an empty in-process scope.
func NewMemoryScope(name string) *MemoryScope {
	return &MemoryScope{name: name}
}

func (s *MemoryScope) Name() string { return s.name }

func (s *MemoryScope) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryScope) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryScope) Delete(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// FileScope stores the credential in a single file. Writes go through a
// temporary file and a rename so readers never observe a partial token.
type FileScope struct {
	name string
	path string
}

// NewFileScope creates a scope backed by dir/key.
func NewFileScope(name, dir, key string) *FileScope {
	return &FileScope{name: name, path: filepath.Join(dir, key)}
}

func (s *FileScope) Name() string { return s.name }

// Path returns the file the scope reads and writes.
func (s *FileScope) Path() string { return s.path }

func (s *FileScope) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s scope: %w", s.name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileScope) Save(_ context.Context, token string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s scope dir: %w", s.name, err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(token); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s scope: %w", s.name, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s scope: %w", s.name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s scope: %w", s.name, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s scope: %w", s.name, err)
	}
	return nil
}

func (s *FileScope) Delete(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s scope: %w", s.name, err)
	}
	return nil
}

type readOnlyScope struct {
	Scope
}

// ReadOnly wraps a scope so that Save fails. Delete still works, which lets
// logout clear credentials issued under an old key.
func ReadOnly(s Scope) Scope {
	return readOnlyScope{Scope: s}
}

func (s readOnlyScope) Save(context.Context, string) error {
	return fmt.Errorf("save %s: %w", s.Name(), ErrReadOnlyScope)
}
