package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)

type fakeStore struct {
	venues    []Venue
	events    []Event
	venueErr  error
	eventErr  error
	gotLimits [2]int
	gotFrom   time.Time
}

func (f *fakeStore) ActiveVenues(_ context.Context, limit int) ([]Venue, error) {
	f.gotLimits[0] = limit
	return f.venues, f.venueErr
}

func (f *fakeStore) UpcomingEvents(_ context.Context, from time.Time, limit int) ([]Event, error) {
	f.gotLimits[1] = limit
	f.gotFrom = from
	return f.events, f.eventErr
}

func TestFetchSnapshotDefaultsAndEmptySlices(t *testing.T) {
	fs := &fakeStore{}
	snap, err := FetchSnapshot(context.Background(), fs, Limits{}, today)
	require.NoError(t, err)
	assert.Equal(t, [2]int{200, 100}, fs.gotLimits)
	assert.Equal(t, today, fs.gotFrom)
	assert.NotNil(t, snap.Venues)
	assert.NotNil(t, snap.Events)
}

func TestFetchSnapshotFailsWhole(t *testing.T) {
	boom := errors.New("boom")
	fs := &fakeStore{venues: []Venue{{ID: "v1"}}, eventErr: boom}
	_, err := FetchSnapshot(context.Background(), fs, Limits{Venues: 5, Events: 5}, today)
	assert.ErrorIs(t, err, boom)
}

func TestRESTStoreQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "svc", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer svc", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "eq.true", q.Get("is_active"))
		switch r.URL.Path {
		case "/rest/v1/venues":
			assert.Equal(t, "200", q.Get("limit"))
			_, _ = io.WriteString(w, `[{"id":"v1","name":"Berghain","category":"club","city":"Berlin"}]`)
		case "/rest/v1/events":
			assert.Equal(t, "gte.2026-10-17", q.Get("date"))
			assert.Equal(t, "date.asc", q.Get("order"))
			_, _ = io.WriteString(w, `[{"id":"e1","title":"Techno Night","city":"Berlin","date":"2026-10-18"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := NewRESTStore(srv.URL+"/", "svc", srv.Client())
	snap, err := FetchSnapshot(context.Background(), store, Limits{}, today)
	require.NoError(t, err)
	require.Len(t, snap.Venues, 1)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "Berghain", snap.Venues[0].Name)
	assert.Equal(t, "Techno Night", snap.Events[0].Title)
}

func TestRESTStoreErrors(t *testing.T) {
	_, err := NewRESTStore("", "", nil).ActiveVenues(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"invalid key"}`)
	}))
	defer srv.Close()
	_, err = NewRESTStore(srv.URL, "bad", srv.Client()).UpcomingEvents(context.Background(), today, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestSQLiteStoreFilters(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "catalog.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	_, err = store.DB().ExecContext(ctx, `
		INSERT INTO venues (id, name, category, city, is_active) VALUES
			('v1', 'Berghain', 'club', 'Berlin', 1),
			('v2', 'Closed Bar', 'bar', 'Berlin', 0),
			('v3', 'Tantris', 'restaurant', 'München', 1);
		INSERT INTO events (id, title, city, date, start_time, is_active) VALUES
			('e1', 'Yesterday Gig', 'Berlin', '2026-10-16', '20:00', 1),
			('e2', 'Tonight Jazz', 'Hamburg', '2026-10-17', '21:00', 1),
			('e3', 'Cancelled', 'Köln', '2026-10-20', '19:00', 0),
			('e4', 'Open Air Kino', 'Berlin', '2026-10-19', '19:30', 1);`)
	require.NoError(t, err)

	venues, err := store.ActiveVenues(ctx, 10)
	require.NoError(t, err)
	require.Len(t, venues, 2)
	assert.Equal(t, "Berghain", venues[0].Name)

	events, err := store.UpcomingEvents(ctx, today, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
	assert.Equal(t, "e4", events[1].ID)

	limited, err := store.UpcomingEvents(ctx, today, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
