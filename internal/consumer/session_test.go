package consumer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nachtplan/internal/catalog"
	"nachtplan/internal/llm"
	"nachtplan/internal/relay"
	"nachtplan/internal/sse"
)

// chunkReader returns one chunk per Read, then err (io.EOF by default).
type chunkReader struct {
	chunks []string
	err    error
	reads  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	r.reads++
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

type fakeRelay struct {
	body  *chunkReader
	err   error
	calls int
	got   []llm.Message
	gate  chan struct{}
}

func (f *fakeRelay) Open(ctx context.Context, msgs []llm.Message) (io.ReadCloser, error) {
	f.calls++
	f.got = msgs
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func frame(text string) string {
	return sse.FormatData(`{"choices":[{"delta":{"content":"` + text + `"}}]}`)
}

func assistantCount(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == llm.RoleAssistant {
			n++
		}
	}
	return n
}

func TestScenarioHelloWorld(t *testing.T) {
	rel := &fakeRelay{body: &chunkReader{chunks: []string{frame("Hello"), frame(" world"), "data: [DONE]\n"}}}
	var states []State
	s := NewSession(rel, nil, WithListener(func(u Update) { states = append(states, u.State) }))

	require.NoError(t, s.Submit(context.Background(), "Plan a night in Berlin"))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Plan a night in Berlin"}, msgs[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Hello world"}, msgs[1])
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Busy())

	require.Len(t, rel.got, 1, "last message sent is the newest user turn")
	assert.Equal(t, llm.RoleUser, rel.got[0].Role)
	assert.Contains(t, states, Streaming)
	assert.Equal(t, Idle, states[len(states)-1])
}

func TestScenarioRateLimited(t *testing.T) {
	rel := &fakeRelay{err: &StatusError{Code: http.StatusTooManyRequests, Message: "rate limited"}}
	var states []State
	s := NewSession(rel, nil, WithListener(func(u Update) { states = append(states, u.State) }))

	err := s.Submit(context.Background(), "Plan a night in Berlin")

	var te *TurnError
	require.ErrorAs(t, err, &te)
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, WarningPrefix+"rate limited", msgs[1].Content)
	assert.Equal(t, Idle, s.State())
	assert.NotContains(t, states, Streaming)
}

func TestSentinelStopsReadingSameChunk(t *testing.T) {
	// bytes after the sentinel in the same read are ignored, and no further
	// reads happen
	body := &chunkReader{chunks: []string{
		frame("a") + "data: [DONE]\n" + frame("ignored"),
		frame("never read"),
	}}
	s := NewSession(&fakeRelay{body: body}, nil)

	require.NoError(t, s.Submit(context.Background(), "go"))

	assert.Equal(t, "a", s.Messages()[1].Content)
	assert.Equal(t, 1, body.reads)
}

func TestFragmentOrderIndependentOfChunking(t *testing.T) {
	fragments := []string{"Zuerst ", "Abendessen ", "im Tantris, ", "dann ", "Jazz."}
	var stream strings.Builder
	for _, f := range fragments {
		stream.WriteString(frame(f))
	}
	stream.WriteString("data: [DONE]\n")
	full := stream.String()

	for _, size := range []int{1, 2, 3, 7, 16, 64, len(full)} {
		var chunks []string
		for i := 0; i < len(full); i += size {
			chunks = append(chunks, full[i:min(i+size, len(full))])
		}
		s := NewSession(&fakeRelay{body: &chunkReader{chunks: chunks}}, nil)
		require.NoError(t, s.Submit(context.Background(), "plan"))
		assert.Equal(t, strings.Join(fragments, ""), s.Messages()[1].Content, "chunk size %d", size)
	}
}

func TestFragmentOrderWithSmallReadBuffer(t *testing.T) {
	body := &chunkReader{chunks: []string{frame("eins ") + frame("zwei ") + frame("drei") + "data: [DONE]\n"}}
	s := NewSession(&fakeRelay{body: body}, nil, WithReadBuffer(5))
	require.NoError(t, s.Submit(context.Background(), "count"))
	assert.Equal(t, "eins zwei drei", s.Messages()[1].Content)
}

func TestMalformedLineTolerated(t *testing.T) {
	body := &chunkReader{chunks: []string{frame("good "), "data: {\"choices\":[{\"delta\n", frame("better"), "data: [DONE]\n"}}
	s := NewSession(&fakeRelay{body: body}, nil)

	require.NoError(t, s.Submit(context.Background(), "go"))
	assert.Equal(t, "good better", s.Messages()[1].Content)
}

func TestSingleAssistantMessagePerTurn(t *testing.T) {
	var chunks []string
	for i := 0; i < 50; i++ {
		chunks = append(chunks, frame("x"))
	}
	var fragmentUpdates int
	var maxAssistants int
	s := NewSession(&fakeRelay{body: &chunkReader{chunks: chunks}}, nil, WithListener(func(u Update) {
		if u.Fragment != "" {
			fragmentUpdates++
		}
		maxAssistants = max(maxAssistants, assistantCount(u.Messages))
	}))

	require.NoError(t, s.Submit(context.Background(), "go"))

	assert.Equal(t, 50, fragmentUpdates, "one update per fragment")
	assert.Equal(t, 1, maxAssistants)
	assert.Equal(t, strings.Repeat("x", 50), s.Messages()[1].Content)

	// second turn adds exactly one more assistant message
	s.relay = &fakeRelay{body: &chunkReader{chunks: []string{frame("y"), frame("z")}}}
	require.NoError(t, s.Submit(context.Background(), "again"))
	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, 2, assistantCount(msgs))
	assert.Equal(t, "yz", msgs[3].Content)
}

func TestBlankInputRejected(t *testing.T) {
	rel := &fakeRelay{}
	var updates int
	s := NewSession(rel, nil, WithListener(func(Update) { updates++ }))

	for _, in := range []string{"", "   ", "\n\t "} {
		assert.ErrorIs(t, s.Submit(context.Background(), in), ErrEmptyInput)
	}
	assert.Zero(t, rel.calls)
	assert.Zero(t, updates)
	assert.Empty(t, s.Messages())
	assert.Equal(t, Idle, s.State())
}

func TestBusyRejectsSecondSubmit(t *testing.T) {
	rel := &fakeRelay{gate: make(chan struct{}), body: &chunkReader{chunks: []string{frame("ok")}}}
	s := NewSession(rel, nil)

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "first") }()

	require.Eventually(t, s.Busy, time.Second, time.Millisecond)
	assert.True(t, s.Loading())
	assert.ErrorIs(t, s.Submit(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, s.Reset(), ErrBusy)

	close(rel.gate)
	require.NoError(t, <-done)
	assert.False(t, s.Busy())
	assert.False(t, s.Loading())
	assert.Len(t, s.Messages(), 2)

	require.NoError(t, s.Reset())
	assert.Empty(t, s.Messages())
}

func TestSubmitRejectedUntilFailedTurnIsIdle(t *testing.T) {
	rel := &fakeRelay{err: &StatusError{Code: http.StatusInternalServerError, Message: "AI gateway error"}}
	var s *Session
	var nested []error
	var resetErr error
	s = NewSession(rel, nil, WithListener(func(u Update) {
		if u.State == Errored {
			nested = append(nested, s.Submit(context.Background(), "again"))
			resetErr = s.Reset()
		}
	}))

	require.Error(t, s.Submit(context.Background(), "first"))

	require.Len(t, nested, 1)
	assert.ErrorIs(t, nested[0], ErrBusy)
	assert.ErrorIs(t, resetErr, ErrBusy)
	assert.Equal(t, 1, rel.calls)
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, Idle, s.State())

	// once Idle the session accepts the next turn
	require.Error(t, s.Submit(context.Background(), "later"))
	assert.Equal(t, 2, rel.calls)
}

func TestEndOfStreamWithoutSentinel(t *testing.T) {
	// unterminated last line is still applied
	body := &chunkReader{chunks: []string{frame("a"), strings.TrimSuffix(frame("b"), "\n")}}
	s := NewSession(&fakeRelay{body: body}, nil)

	require.NoError(t, s.Submit(context.Background(), "go"))
	assert.Equal(t, "ab", s.Messages()[1].Content)
	assert.Equal(t, Idle, s.State())
}

func TestConnectionDropAppendsNotice(t *testing.T) {
	body := &chunkReader{chunks: []string{frame("Half")}, err: errors.New("connection reset by peer")}
	s := NewSession(&fakeRelay{body: body}, nil)

	err := s.Submit(context.Background(), "go")

	var te *TurnError
	require.ErrorAs(t, err, &te)
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Half"+ConnectionNotice, msgs[1].Content)
	assert.Equal(t, Idle, s.State())
}

func TestConnectionDropBeforeAnyText(t *testing.T) {
	body := &chunkReader{err: errors.New("EOF in headers")}
	s := NewSession(&fakeRelay{body: body}, nil)

	require.Error(t, s.Submit(context.Background(), "go"))
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Content, WarningPrefix))
}

func TestTransportErrorUsesFallback(t *testing.T) {
	s := NewSession(&fakeRelay{err: errors.New("dial tcp: refused")}, nil)
	require.Error(t, s.Submit(context.Background(), "go"))
	assert.Equal(t, WarningPrefix+FallbackErrorMessage, s.Messages()[1].Content)
}

func TestCancellationEndsTurnQuietly(t *testing.T) {
	rel := &fakeRelay{gate: make(chan struct{})}
	s := NewSession(rel, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Submit(ctx, "go") }()
	require.Eventually(t, s.Busy, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Len(t, s.Messages(), 1, "no notice on cancellation")
	assert.Equal(t, Idle, s.State())
}

func TestEndToEndThroughRelay(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, c := range []string{frame("Hello"), frame(" world"), "data: [DONE]\n"} {
			_, _ = io.WriteString(w, c)
			fl.Flush()
		}
	}))
	defer upstream.Close()

	gw := llm.NewGateway(llm.GatewayConfig{URL: upstream.URL, APIKey: "k", Model: "m"})
	h := relay.NewHandler(relay.Deps{Catalog: emptyCatalog{}, Gateway: gw})
	srv := httptest.NewServer(relay.NewRouter(relay.RouterConfig{}, h))
	defer srv.Close()

	s := NewSession(NewClient(srv.URL+relay.PathFunction, "anon", srv.Client()), nil)
	require.NoError(t, s.Submit(context.Background(), "Plan a night in Berlin"))
	assert.Equal(t, "Hello world", s.Messages()[1].Content)

	// upstream 402 comes back as a tailored notice
	quota := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer quota.Close()
	h2 := relay.NewHandler(relay.Deps{Catalog: emptyCatalog{}, Gateway: llm.NewGateway(llm.GatewayConfig{URL: quota.URL, APIKey: "k"})})
	srv2 := httptest.NewServer(relay.NewRouter(relay.RouterConfig{}, h2))
	defer srv2.Close()

	s2 := NewSession(NewClient(srv2.URL+relay.PathChat, "", srv2.Client()), nil)
	require.Error(t, s2.Submit(context.Background(), "Plan a night in Berlin"))
	assert.Equal(t, WarningPrefix+relay.MsgQuota, s2.Messages()[1].Content)
}

type emptyCatalog struct{}

func (emptyCatalog) ActiveVenues(context.Context, int) ([]catalog.Venue, error) { return nil, nil }

func (emptyCatalog) UpcomingEvents(context.Context, time.Time, int) ([]catalog.Event, error) {
	return nil, nil
}
