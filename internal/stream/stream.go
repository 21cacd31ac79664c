// Package stream sequences requests against one logical target so that a slow, superseded
// response can never overwrite the result of a newer request.
package stream

import (
	"context"
	"sync"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is what a stream currently reports. Value is the last good value and survives
// subsequent pending and error states.
type State[T any] struct {
	Token    uint64
	Status   Status
	Value    T
	HasValue bool
	Err      error
}

type EventKind int

const (
	Issued EventKind = iota
	Resolved
	Failed
)

type Event[T any] struct {
	Kind  EventKind
	Token uint64
	Value T
	Err   error
}

// Reduce is the pure transition function of a stream. Events carrying a token other than the
// current one (or an older token, for Issued) leave the state unchanged.
func Reduce[T any](s State[T], e Event[T]) State[T] {
	switch e.Kind {
	case Issued:
		if e.Token <= s.Token {
			return s
		}
		s.Token = e.Token
		s.Status = StatusPending
		s.Err = nil
	case Resolved:
		if e.Token != s.Token || s.Status != StatusPending {
			return s
		}
		s.Status = StatusSuccess
		s.Value = e.Value
		s.HasValue = true
		s.Err = nil
	case Failed:
		if e.Token != s.Token || s.Status != StatusPending {
			return s
		}
		s.Status = StatusError
		s.Err = e.Err
	}
	return s
}

// Ticket identifies one issued request.
type Ticket struct {
	Token uint64
}

// Stream holds the state of one logical request stream.
type Stream[T any] struct {
	mu     sync.Mutex
	state  State[T]
	next   uint64
	cancel context.CancelFunc
}

// Begin issues a new request. The previous in-flight request's context is cancelled; the
// returned context must be used for the new request.
func (s *Stream[T]) Begin(ctx context.Context) (Ticket, context.Context) {
	reqCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.next++
	s.state = Reduce(s.state, Event[T]{Kind: Issued, Token: s.next})
	return Ticket{Token: s.next}, reqCtx
}

// Resolve applies v if t is still the current request and reports whether it was applied.
func (s *Stream[T]) Resolve(t Ticket, v T) bool {
	return s.complete(Event[T]{Kind: Resolved, Token: t.Token, Value: v})
}

// Fail records err if t is still the current request and reports whether it was applied.
func (s *Stream[T]) Fail(t Ticket, err error) bool {
	return s.complete(Event[T]{Kind: Failed, Token: t.Token, Err: err})
}

func (s *Stream[T]) complete(e Event[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Token != s.state.Token || s.state.Status != StatusPending {
		return false
	}
	s.state = Reduce(s.state, e)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// Snapshot returns the current state.
func (s *Stream[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	if out.Status == "" {
		out.Status = StatusIdle
	}
	return out
}

// Run issues a request, executes fn with the request context and applies its outcome. The
// returned boolean is false when a newer request superseded this one.
func (s *Stream[T]) Run(ctx context.Context, fn func(context.Context) (T, error)) (State[T], bool) {
	ticket, reqCtx := s.Begin(ctx)
	v, err := fn(reqCtx)

	var applied bool
	if err != nil {
		applied = s.Fail(ticket, err)
	} else {
		applied = s.Resolve(ticket, v)
	}
	return s.Snapshot(), applied
}
