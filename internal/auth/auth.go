// Package auth keeps the allowlist of Telegram users who may talk to the
// planner bot.
package auth

import (
	"errors"
	"slices"
	"sync"
)

var ErrInvalidID = errors.New("user id must be positive")

type Member struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

type Repository interface {
	LoadAll() ([]Member, error)
	Save(members []Member) error
}

// Allowlist is safe for concurrent use. Every change is persisted through the
// repository before it returns.
type Allowlist struct {
	repo Repository

	mu      sync.RWMutex
	members map[int64]Member
}

// NewAllowlist loads persisted members and merges the ids configured through
// the environment. A repository read failure is returned; env ids are
// still usable in that case.
func NewAllowlist(repo Repository, seed []int64) (*Allowlist, error) {
	a := &Allowlist{repo: repo, members: make(map[int64]Member)}
	var loadErr error
	if repo != nil {
		members, err := repo.LoadAll()
		if err != nil {
			loadErr = err
		}
		for _, m := range members {
			a.members[m.ID] = m
		}
	}
	for _, id := range seed {
		if _, ok := a.members[id]; !ok && id > 0 {
			a.members[id] = Member{ID: id}
		}
	}
	return a, loadErr
}

func (a *Allowlist) IsAllowed(id int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.members[id]
	return ok
}

// Allow adds or refreshes a member. Known usernames are kept when m carries
// none.
func (a *Allowlist) Allow(m Member) error {
	if m.ID <= 0 {
		return ErrInvalidID
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.members[m.ID]; ok {
		if m.Username == "" {
			m.Username = prev.Username
		}
		if m.Name == "" {
			m.Name = prev.Name
		}
	}
	a.members[m.ID] = m
	return a.persistLocked()
}

// Revoke reports whether id was present.
func (a *Allowlist) Revoke(id int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.members[id]; !ok {
		return false, nil
	}
	delete(a.members, id)
	return true, a.persistLocked()
}

// Members returns the allowlist ordered by id.
func (a *Allowlist) Members() []Member {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sortedLocked()
}

func (a *Allowlist) sortedLocked() []Member {
	out := make([]Member, 0, len(a.members))
	for _, m := range a.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(x, y Member) int {
		switch {
		case x.ID < y.ID:
			return -1
		case x.ID > y.ID:
			return 1
		}
		return 0
	})
	return out
}

func (a *Allowlist) persistLocked() error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Save(a.sortedLocked())
}
