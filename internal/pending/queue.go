// Package pending queues access requests from users who are not on the
// allowlist yet.
package pending

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type Request struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Queue persists to a JSON file when opened with a path; an empty path keeps
// it in memory.
type Queue struct {
	path string

	mu   sync.Mutex
	reqs map[int64]Request
}

func Open(path string) (*Queue, error) {
	q := &Queue{path: path, reqs: make(map[int64]Request)}
	if path == "" {
		return q, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read pending: %w", err)
	}
	if len(b) > 0 {
		var reqs []Request
		if err := json.Unmarshal(b, &reqs); err != nil {
			return nil, fmt.Errorf("decode pending %s: %w", path, err)
		}
		for _, r := range reqs {
			q.reqs[r.UserID] = r
		}
	}
	return q, nil
}

// Add reports false when the user already has an open request.
func (q *Queue) Add(r Request) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.reqs[r.UserID]; ok {
		return false, nil
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	q.reqs[r.UserID] = r
	return true, q.saveLocked()
}

func (q *Queue) Remove(userID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.reqs[userID]; !ok {
		return nil
	}
	delete(q.reqs, userID)
	return q.saveLocked()
}

// List returns open requests, oldest first.
func (q *Queue) List() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sortedLocked()
}

func (q *Queue) sortedLocked() []Request {
	out := make([]Request, 0, len(q.reqs))
	for _, r := range q.reqs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Request) int {
		if c := a.RequestedAt.Compare(b.RequestedAt); c != 0 {
			return c
		}
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return out
}

func (q *Queue) saveLocked() error {
	if q.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(q.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write pending: %w", err)
	}
	return os.Rename(tmp, q.path)
}
