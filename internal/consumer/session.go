// Package consumer drives planner chat turns against the relay and grows the
// assistant reply in the conversation as fragments stream in.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"nachtplan/internal/history"
	"nachtplan/internal/llm"
	"nachtplan/internal/logging"
	"nachtplan/internal/sse"
)

type State int

const (
	Idle State = iota
	Requesting
	Streaming
	Errored
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Streaming:
		return "streaming"
	case Errored:
		return "errored"
	default:
		return "idle"
	}
}

const (
	WarningPrefix     = "⚠️ "
	ConnectionNotice  = "\n\n" + WarningPrefix + "Connection error. Please try again."
	defaultReadBuffer = 4 << 10
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("assistant is still answering")
)

// TurnError reports a turn that ended with a visible error notice.
type TurnError struct {
	Err error
}

func (e *TurnError) Error() string { return "planner turn failed: " + e.Err.Error() }

func (e *TurnError) Unwrap() error { return e.Err }

// Update is delivered to the listener on every state change and on every
// fragment.
type Update struct {
	State    State
	Messages []llm.Message
	// Loading is true while a turn is active and no assistant text exists
	// for it yet.
	Loading bool
	// Fragment is the text appended by this update, if any.
	Fragment string
}

type Listener func(Update)

type Option func(*Session)

func WithListener(l Listener) Option { return func(s *Session) { s.listener = l } }

// WithReadBuffer sets the size of each body read, which bounds chunk sizes.
func WithReadBuffer(n int) Option { return func(s *Session) { s.readBuffer = n } }

// Session owns one conversation and runs at most one turn at a time.
type Session struct {
	relay      Relay
	conv       *history.Conversation
	listener   Listener
	readBuffer int

	mu    sync.Mutex
	state State
}

func NewSession(relay Relay, conv *history.Conversation, opts ...Option) *Session {
	if conv == nil {
		conv = history.NewConversation()
	}
	s := &Session{relay: relay, conv: conv, readBuffer: defaultReadBuffer}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy is true exactly while a turn is Requesting or Streaming.
func (s *Session) Busy() bool {
	st := s.State()
	return st == Requesting || st == Streaming
}

func (s *Session) Loading() bool {
	if !s.Busy() {
		return false
	}
	last, ok := s.conv.Last()
	return !ok || last.Role != llm.RoleAssistant
}

func (s *Session) Messages() []llm.Message { return s.conv.Messages() }

// Reset clears the conversation unless a turn is running.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrBusy
	}
	s.conv.Reset()
	return nil
}

// Submit runs one turn and blocks until it ends. Blank input and submissions
// during an active turn are rejected without any state change. Failures of
// the turn itself are appended to the conversation and returned as
// *TurnError; the session is Idle again either way.
func (s *Session) Submit(ctx context.Context, text string) error {
	input := strings.TrimSpace(text)
	if input == "" {
		return ErrEmptyInput
	}

	// A turn owns the session from Requesting until it sets Idle again,
	// including the Errored step in between.
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = Requesting
	s.mu.Unlock()

	s.conv.AppendUser(input)
	s.notify("")

	err := s.run(ctx)
	var te *TurnError
	if errors.As(err, &te) {
		s.setState(Errored)
	}
	s.setState(Idle)
	return err
}

func (s *Session) run(ctx context.Context) error {
	log := logging.Ctx(ctx)

	body, err := s.relay.Open(ctx, s.conv.Messages())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var se *StatusError
		if errors.As(err, &se) {
			s.conv.AppendAssistant(WarningPrefix + se.Message)
		} else {
			s.conv.AppendAssistant(WarningPrefix + FallbackErrorMessage)
		}
		log.Warn().Err(err).Msg("planner request failed")
		return &TurnError{Err: err}
	}
	defer body.Close()

	s.setState(Streaming)

	var acc strings.Builder
	err = s.consume(ctx, body, &acc)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		log.Debug().Err(err).Int("chars", acc.Len()).Msg("planner turn cancelled")
		return ctx.Err()
	default:
		if acc.Len() == 0 {
			acc.WriteString(strings.TrimLeft(ConnectionNotice, "\n"))
		} else {
			acc.WriteString(ConnectionNotice)
		}
		s.conv.UpsertAssistant(acc.String())
		log.Warn().Err(err).Int("chars", acc.Len()).Msg("planner stream interrupted")
		return &TurnError{Err: err}
	}
}

// consume reads the body until the sentinel, EOF or an error.
func (s *Session) consume(ctx context.Context, body io.Reader, acc *strings.Builder) error {
	var framer sse.Framer
	buf := make([]byte, s.readBuffer)

	// apply reports true once the sentinel has been seen.
	apply := func(line string) bool {
		frame := sse.ParseLine(line)
		switch frame.Kind {
		case sse.Sentinel:
			return true
		case sse.Fragment:
			acc.WriteString(frame.Text)
			s.conv.UpsertAssistant(acc.String())
			s.notify(frame.Text)
		}
		// Unparseable lines are partial json; skip them.
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			framer.Feed(buf[:n])
			for line := range framer.Lines() {
				if apply(line) {
					return nil
				}
			}
		}
		if rerr == io.EOF {
			if line, ok := framer.Flush(); ok {
				apply(line)
			}
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read relay stream: %w", rerr)
		}
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.notify("")
}

func (s *Session) notify(fragment string) {
	if s.listener == nil {
		return
	}
	st := s.State()
	msgs := s.conv.Messages()
	loading := false
	if st == Requesting || st == Streaming {
		loading = len(msgs) == 0 || msgs[len(msgs)-1].Role != llm.RoleAssistant
	}
	s.listener(Update{State: st, Messages: msgs, Loading: loading, Fragment: fragment})
}
