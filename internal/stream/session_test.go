package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/streamchat/internal/domain"
)

type sliceSource struct {
	fragments []string
	err       error
	nextCalls atomic.Int32
	closes    atomic.Int32
}

func (s *sliceSource) Next(ctx context.Context) (string, error) {
	s.nextCalls.Add(1)
	if len(s.fragments) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	frag := s.fragments[0]
	s.fragments = s.fragments[1:]
	return frag, nil
}

func (s *sliceSource) Close() error {
	s.closes.Add(1)
	return nil
}

// blockingSource never yields until its context ends
type blockingSource struct {
	closes atomic.Int32
}

func (b *blockingSource) Next(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *blockingSource) Close() error {
	b.closes.Add(1)
	return nil
}

func drain(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestSession_ConcatenatesFragments(t *testing.T) {
	cases := [][]string{
		{"Hi", " there"},
		{"a"},
		{"你", "好", "!", " multi", "-", "part"},
	}

	for _, fragments := range cases {
		src := &sliceSource{fragments: append([]string(nil), fragments...)}
		s := New("c1", src)

		events := drain(s.Start(context.Background()))

		require.Len(t, events, len(fragments)+1)
		for i, ev := range events[:len(fragments)] {
			assert.Equal(t, EventChunk, ev.Kind)
			assert.Equal(t, fragments[i], ev.Fragment)
			assert.Equal(t, strings.Join(fragments[:i+1], ""), ev.Text)
		}

		last := events[len(events)-1]
		assert.Equal(t, EventDone, last.Kind)
		assert.Equal(t, strings.Join(fragments, ""), last.Text)
		assert.Equal(t, domain.ID("c1"), last.ConversationID)
		assert.Equal(t, StateDone, s.State())
		assert.Equal(t, int32(1), src.closes.Load())
	}
}

func TestSession_EmptyReply(t *testing.T) {
	s := New("c1", &sliceSource{})

	events := drain(s.Start(context.Background()))

	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Kind)
	assert.Empty(t, events[0].Text)
}

func TestSession_FailureCarriesPartialText(t *testing.T) {
	boom := &domain.TransportError{Op: "read stream", Kind: domain.TransportRead, Err: errors.New("reset")}
	src := &sliceSource{fragments: []string{"Hi", " th"}, err: boom}
	s := New("c1", src)

	events := drain(s.Start(context.Background()))

	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, EventFailed, last.Kind)
	assert.Equal(t, "Hi th", last.Text)
	assert.ErrorIs(t, last.Err, boom)
	assert.Equal(t, StateFailed, s.State())
	assert.ErrorIs(t, s.Err(), boom)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestSession_NeverStartedEmitsNothing(t *testing.T) {
	src := &sliceSource{fragments: []string{"x"}}
	s := New("c1", src)

	require.NoError(t, s.Close())

	assert.Zero(t, src.nextCalls.Load())
	assert.Equal(t, int32(1), src.closes.Load())
	assert.Equal(t, StateFailed, s.State())
	assert.ErrorIs(t, s.Err(), ErrClosed)
}

func TestSession_StartTwice(t *testing.T) {
	s := New("c1", &sliceSource{fragments: []string{"x"}})

	first := s.Start(context.Background())
	second := s.Start(context.Background())

	_, open := <-second
	assert.False(t, open)
	assert.Len(t, drain(first), 2)
}

func TestSession_CloseReleasesBlockedSource(t *testing.T) {
	src := &blockingSource{}
	s := New("c1", src)
	events := s.Start(context.Background())

	require.NoError(t, s.Close())

	select {
	case _, open := <-events:
		assert.False(t, open, "no event expected after close")
	case <-time.After(time.Second):
		t.Fatal("session did not stop after close")
	}
	assert.GreaterOrEqual(t, src.closes.Load(), int32(1))
	assert.ErrorIs(t, s.Err(), ErrClosed)
}

func TestSession_ContextCancelReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New("c1", &blockingSource{})
	events := s.Start(ctx)

	cancel()

	evs := drain(events)
	require.Len(t, evs, 1)
	assert.Equal(t, EventFailed, evs[0].Kind)
	assert.ErrorIs(t, evs[0].Err, context.Canceled)
	assert.Equal(t, StateFailed, s.State())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestSession_CancelAlwaysEndsWithOneFailure(t *testing.T) {
	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		s := New("c1", &blockingSource{})

		failures, completions := 0, 0
		done := make(chan struct{})
		go func() {
			defer close(done)
			Handler{
				OnComplete: func(string) { completions++ },
				OnFailure:  func(error, string) { failures++ },
			}.Dispatch(s.Start(ctx))
		}()

		cancel()
		<-done

		require.Equal(t, 1, failures, "run %d", i)
		require.Zero(t, completions, "run %d", i)
	}
}

func TestSession_CancelWhileChunkPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New("c1", &sliceSource{fragments: []string{"Hi", " there"}})
	events := s.Start(ctx)

	cancel()

	evs := drain(events)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Contains(t, []EventKind{EventDone, EventFailed}, last.Kind)
	for _, ev := range evs[:len(evs)-1] {
		assert.Equal(t, EventChunk, ev.Kind)
	}
}

func TestHandler_Dispatch(t *testing.T) {
	s := New("c1", &sliceSource{fragments: []string{"Hi", " there"}})

	var chunks []string
	var final string
	failed := false

	Handler{
		OnChunk:    func(fragment, text string) { chunks = append(chunks, text) },
		OnComplete: func(text string) { final = text },
		OnFailure:  func(err error, partial string) { failed = true },
	}.Dispatch(s.Start(context.Background()))

	assert.Equal(t, []string{"Hi", "Hi there"}, chunks)
	assert.Equal(t, "Hi there", final)
	assert.False(t, failed)
}
