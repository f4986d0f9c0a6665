// Package relay serves the itinerary planner: it grounds a conversation with
// the reference snapshot, opens a streaming completion upstream and copies
// the upstream bytes back unchanged.
package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"nachtplan/internal/catalog"
	"nachtplan/internal/llm"
	"nachtplan/internal/logging"
)

const copyBufferSize = 32 << 10

// Gateway is the upstream completion endpoint.
type Gateway interface {
	llm.Streamer
	Configured() bool
}

type ChatRequest struct {
	Messages []llm.Message `json:"messages"`
}

// Deps are constructed once per process and shared by all invocations.
type Deps struct {
	Catalog catalog.Store
	Gateway Gateway
	Limits  catalog.Limits
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler is stateless across invocations and safe for concurrent use.
type Handler struct {
	catalog catalog.Store
	gateway Gateway
	limits  catalog.Limits
	now     func() time.Time
}

func NewHandler(d Deps) *Handler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		catalog: d.Catalog,
		gateway: d.Gateway,
		limits:  d.Limits,
		now:     now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.Ctx(ctx)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if h.gateway == nil || !h.gateway.Configured() {
		h.fail(w, r, llm.ErrMissingAPIKey)
		return
	}
	if h.catalog == nil {
		h.fail(w, r, catalog.ErrNotConfigured)
		return
	}

	now := h.now()
	started := time.Now()
	snap, err := catalog.FetchSnapshot(ctx, h.catalog, h.limits, now)
	snapshotDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	system, err := BuildSystemPrompt(snap, now)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	log.Debug().
		Int("messages", len(req.Messages)).
		Int("venues", len(snap.Venues)).
		Int("events", len(snap.Events)).
		Msg("opening upstream stream")

	started = time.Now()
	body, err := h.gateway.Stream(ctx, withSystemPrompt(system, req.Messages))
	upstreamTTFB.Observe(time.Since(started).Seconds())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	requestsTotal.WithLabelValues(outcomeOK).Inc()

	n, err := pipe(w, body)
	streamBytes.Add(float64(n))
	if err != nil {
		// The response is already committed; nothing structured can follow.
		log.Warn().Err(err).Int64("bytes", n).Msg("stream relay interrupted")
		return
	}
	log.Info().Int64("bytes", n).Dur("elapsed", time.Since(started)).Msg("stream relayed")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message, outcome := classify(err)
	requestsTotal.WithLabelValues(outcome).Inc()

	ev := logging.Ctx(r.Context()).Error().Err(err).Int("status", status)
	var se *llm.StatusError
	if errors.As(err, &se) {
		ev = ev.Int("upstream_status", se.Code).Str("upstream_body", se.Body)
	}
	ev.Msg("planner relay failed")

	WriteError(w, status, message)
}

// pipe copies src to w, flushing after every read so fragments reach the
// caller as soon as the gateway produces them.
func pipe(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, fmt.Errorf("write to caller: %w", werr)
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return total, fmt.Errorf("flush to caller: %w", ferr)
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, fmt.Errorf("read from gateway: %w", rerr)
		}
	}
}
