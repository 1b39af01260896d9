// Package stream assembles a streamed reply into events for one conversation.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/domain"
)

// ErrClosed is reported when a session is discarded before it ends
var ErrClosed = errors.New("stream session closed")

// Source yields decoded text fragments; io.EOF ends the sequence.
// Close must be idempotent and safe to call while Next is blocked.
type Source interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// State is the lifecycle state of a session
type State string

const (
	StateOpen   State = "OPEN"
	StateDone   State = "DONE"
	StateFailed State = "FAILED"
)

// EventKind tags an Event
type EventKind int

const (
	EventChunk EventKind = iota
	EventDone
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is published for every fragment and once at the end.
// Text is always the accumulated reply so far.
type Event struct {
	Kind           EventKind
	ConversationID domain.ID
	Fragment       string
	Text           string
	Err            error
}

// Session owns one in-flight reply
type Session struct {
	conversationID domain.ID
	src            Source

	mu      sync.Mutex
	text    strings.Builder
	state   State
	err     error
	started bool
	cancel  context.CancelFunc

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a session that reads src on behalf of conversationID
func New(conversationID domain.ID, src Source) *Session {
	return &Session{
		conversationID: conversationID,
		src:            src,
		state:          StateOpen,
		closed:         make(chan struct{}),
	}
}

// ConversationID returns the conversation the reply belongs to
func (s *Session) ConversationID() domain.ID {
	return s.conversationID
}

// Start begins consuming the source. The returned channel carries one Chunk
// per fragment in arrival order followed by exactly one Done or Failed, and
// is closed afterwards. Cancelling ctx ends the session with Failed; only
// Close discards it without a terminal event. The caller must drain the
// channel or Close the session. Starting a session twice returns a closed
// channel.
func (s *Session) Start(ctx context.Context) <-chan Event {
	events := make(chan Event)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		close(events)
		return events
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx, events)
	return events
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the text accumulated so far
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Err returns the failure of a FAILED session
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close discards the session and releases the source. Safe to call at any
// time and more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		if s.state == StateOpen {
			s.state = StateFailed
			s.err = ErrClosed
		}
		s.mu.Unlock()

		err = s.src.Close()
	})
	return err
}

func (s *Session) run(ctx context.Context, events chan<- Event) {
	defer close(events)
	defer s.src.Close()

	logger := log.With().
		Str("component", "stream").
		Str("conversation_id", s.conversationID.String()).
		Logger()

	chunks := 0
	for {
		frag, err := s.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			text, ok := s.finish(StateDone, nil)
			if !ok {
				return
			}
			logger.Debug().Int("chunks", chunks).Int("bytes", len(text)).Msg("stream completed")
			s.deliver(events, Event{Kind: EventDone, ConversationID: s.conversationID, Text: text})
			return
		}
		if err != nil {
			s.fail(logger, events, err, chunks)
			return
		}

		text := s.append(frag)
		chunks++
		select {
		case events <- Event{Kind: EventChunk, ConversationID: s.conversationID, Fragment: frag, Text: text}:
		case <-s.closed:
			return
		case <-ctx.Done():
			s.fail(logger, events, ctx.Err(), chunks)
			return
		}
	}
}

// fail ends an open session with a Failed event
func (s *Session) fail(logger zerolog.Logger, events chan<- Event, err error, chunks int) {
	text, ok := s.finish(StateFailed, err)
	if !ok {
		return
	}
	logger.Warn().Err(err).Int("chunks", chunks).Msg("stream failed")
	s.deliver(events, Event{Kind: EventFailed, ConversationID: s.conversationID, Text: text, Err: err})
}

func (s *Session) append(frag string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text.WriteString(frag)
	return s.text.String()
}

// finish moves an open session to its terminal state. It reports false when
// the session was already closed.
func (s *Session) finish(state State, err error) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return s.text.String(), false
	}
	s.state = state
	s.err = err
	return s.text.String(), true
}

// deliver hands over the terminal event. Only Close abandons it.
func (s *Session) deliver(events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-s.closed:
	}
}
