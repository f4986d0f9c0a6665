// Package catalog reads the reference snapshot of venues and events used to
// ground planner answers. Snapshots are fetched fresh on every call.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultVenueLimit = 200
	DefaultEventLimit = 100
)

// ErrNotConfigured is returned by stores missing connection credentials.
var ErrNotConfigured = errors.New("catalog store is not configured")

type Venue struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	City         string `json:"city"`
	Address      string `json:"address,omitempty"`
	Description  string `json:"description,omitempty"`
	PriceRange   string `json:"price_range,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
}

type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	City        string `json:"city"`
	VenueName   string `json:"venue_name,omitempty"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time,omitempty"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
}

type Snapshot struct {
	Venues []Venue `json:"venues"`
	Events []Event `json:"events"`
}

// Store is a read-only view over the backing database.
// ActiveVenues returns at most limit active venues; UpcomingEvents returns at
// most limit active events dated on or after from, ordered by date.
type Store interface {
	ActiveVenues(ctx context.Context, limit int) ([]Venue, error)
	UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]Event, error)
}

type Limits struct {
	Venues int
	Events int
}

func (l Limits) withDefaults() Limits {
	if l.Venues <= 0 {
		l.Venues = DefaultVenueLimit
	}
	if l.Events <= 0 {
		l.Events = DefaultEventLimit
	}
	return l
}

// FetchSnapshot runs both queries concurrently. Any failure fails the whole
// snapshot; there is no retry.
func FetchSnapshot(ctx context.Context, s Store, limits Limits, now time.Time) (Snapshot, error) {
	limits = limits.withDefaults()
	var snap Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		venues, err := s.ActiveVenues(gctx, limits.Venues)
		if err != nil {
			return fmt.Errorf("fetch venues: %w", err)
		}
		snap.Venues = venues
		return nil
	})
	g.Go(func() error {
		events, err := s.UpcomingEvents(gctx, now, limits.Events)
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		snap.Events = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	if snap.Venues == nil {
		snap.Venues = []Venue{}
	}
	if snap.Events == nil {
		snap.Events = []Event{}
	}
	return snap, nil
}

func dateOnly(t time.Time) string {
	return t.Format(time.DateOnly)
}
