package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	venueColumns = "id,name,category,city,address,description,price_range,opening_hours"
	eventColumns = "id,title,category,city,venue_name,date,start_time,price,description"
)

// RESTStore queries the hosted database through its PostgREST endpoint.
type RESTStore struct {
	baseURL string
	key     string
	client  *http.Client
}

func NewRESTStore(baseURL, serviceKey string, client *http.Client) *RESTStore {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     serviceKey,
		client:  client,
	}
}

func (s *RESTStore) ActiveVenues(ctx context.Context, limit int) ([]Venue, error) {
	q := url.Values{}
	q.Set("select", venueColumns)
	q.Set("is_active", "eq.true")
	q.Set("limit", strconv.Itoa(limit))

	var out []Venue
	if err := s.get(ctx, "venues", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RESTStore) UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]Event, error) {
	q := url.Values{}
	q.Set("select", eventColumns)
	q.Set("is_active", "eq.true")
	q.Set("date", "gte."+dateOnly(from))
	q.Set("order", "date.asc")
	q.Set("limit", strconv.Itoa(limit))

	var out []Event
	if err := s.get(ctx, "events", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RESTStore) get(ctx context.Context, table string, q url.Values, dst any) error {
	if s.baseURL == "" || s.key == "" {
		return fmt.Errorf("%w: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required", ErrNotConfigured)
	}
	u := s.baseURL + "/rest/v1/" + table + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build %s query: %w", table, err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("query %s: status %d: %s", table, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}
