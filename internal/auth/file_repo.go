package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// FileRepository stores the allowlist as an indented JSON array.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &FileRepository{path: path}, nil
}

// LoadAll returns no members for a missing or empty file.
func (r *FileRepository) LoadAll() ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var members []Member
	if err := json.Unmarshal(b, &members); err != nil {
		return nil, fmt.Errorf("decode allowlist %s: %w", r.path, err)
	}
	return members, nil
}

// Save replaces the file contents through a temp file and rename.
func (r *FileRepository) Save(members []Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members == nil {
		members = []Member{}
	}
	b, err := json.MarshalIndent(members, "", "  ")
	if err != nil {
		return fmt.Errorf("encode allowlist: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write allowlist: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace allowlist: %w", err)
	}
	return nil
}
