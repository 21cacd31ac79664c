package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce(t *testing.T) {
	var s State[string]

	s = Reduce(s, Event[string]{Kind: Issued, Token: 1})
	assert.Equal(t, StatusPending, s.Status)

	s = Reduce(s, Event[string]{Kind: Resolved, Token: 1, Value: "one"})
	assert.Equal(t, StatusSuccess, s.Status)
	assert.Equal(t, "one", s.Value)
	assert.True(t, s.HasValue)

	s = Reduce(s, Event[string]{Kind: Issued, Token: 2})
	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, "one", s.Value, "last good value survives a new request")

	stale := Reduce(s, Event[string]{Kind: Resolved, Token: 1, Value: "late"})
	assert.Equal(t, s, stale)

	older := Reduce(s, Event[string]{Kind: Issued, Token: 1})
	assert.Equal(t, s, older)

	boom := errors.New("boom")
	s = Reduce(s, Event[string]{Kind: Failed, Token: 2, Err: boom})
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, boom, s.Err)
	assert.Equal(t, "one", s.Value)

	again := Reduce(s, Event[string]{Kind: Resolved, Token: 2, Value: "dup"})
	assert.Equal(t, s, again, "a settled request cannot settle twice")
}

func TestStreamDiscardsStaleCompletion(t *testing.T) {
	var s Stream[string]
	ctx := context.Background()
	assert.Equal(t, StatusIdle, s.Snapshot().Status)

	a, actx := s.Begin(ctx)
	b, _ := s.Begin(ctx)

	assert.ErrorIs(t, actx.Err(), context.Canceled, "superseded request is aborted")

	assert.True(t, s.Resolve(b, "B"))
	assert.False(t, s.Resolve(a, "A"))
	assert.False(t, s.Fail(a, context.Canceled))

	snap := s.Snapshot()
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "B", snap.Value)
	assert.NoError(t, snap.Err)
}

func TestStreamRunOutOfOrder(t *testing.T) {
	var s Stream[string]
	ctx := context.Background()

	releaseA := make(chan struct{})
	startedA := make(chan struct{})
	doneA := make(chan bool, 1)

	go func() {
		_, applied := s.Run(ctx, func(ctx context.Context) (string, error) {
			close(startedA)
			<-releaseA
			return "A", nil
		})
		doneA <- applied
	}()
	<-startedA

	state, applied := s.Run(ctx, func(ctx context.Context) (string, error) {
		return "B", nil
	})
	require.True(t, applied)
	assert.Equal(t, "B", state.Value)

	close(releaseA)
	select {
	case appliedA := <-doneA:
		assert.False(t, appliedA)
	case <-time.After(time.Second):
		t.Fatal("slow request never completed")
	}
	assert.Equal(t, "B", s.Snapshot().Value)
}

func TestStreamRunFailure(t *testing.T) {
	var s Stream[int]
	boom := errors.New("upstream down")

	state, applied := s.Run(context.Background(), func(context.Context) (int, error) {
		return 0, boom
	})
	assert.True(t, applied)
	assert.Equal(t, StatusError, state.Status)
	assert.ErrorIs(t, state.Err, boom)
	assert.False(t, state.HasValue)
}
