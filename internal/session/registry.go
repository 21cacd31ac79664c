package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"henry/internal/cart"
	"henry/internal/db"
	"henry/internal/models"
)

var ErrMissingID = errors.New("missing session id")

// SnapshotSource returns the last persisted cart of a session.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, sessionID string) (*models.CartSnapshot, error)
}

// Deps are the collaborators shared by every session. Publisher and Snapshots are optional.
type Deps struct {
	Catalog     Catalog
	CartFor     func(sessionID string) cart.Service
	Merchants   MerchantChecker
	Publisher   cart.Publisher
	Snapshots   SnapshotSource
	AddedFlash  time.Duration
	SearchLimit int
}

// Registry creates sessions lazily, one per browser id.
type Registry struct {
	deps Deps
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	if deps.SearchLimit <= 0 {
		deps.SearchLimit = DefaultSearchLimit
	}
	return &Registry{deps: deps, now: time.Now, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating and seeding it on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingID
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = r.newSession(id)
		r.sessions[id] = s
	}
	r.mu.Unlock()

	s.touch(r.now())
	if !ok {
		r.seed(ctx, s)
	}
	return s, nil
}

func (r *Registry) newSession(id string) *Session {
	opts := []cart.Option{cart.WithAddedFlash(r.deps.AddedFlash)}
	if r.deps.Publisher != nil {
		opts = append(opts, cart.WithPublisher(r.deps.Publisher))
	}
	return &Session{
		id:          id,
		catalog:     r.deps.Catalog,
		merchants:   r.deps.Merchants,
		searchLimit: r.deps.SearchLimit,
		cart:        cart.NewReconciler(id, r.deps.CartFor(id), opts...),
	}
}

func (r *Registry) seed(ctx context.Context, s *Session) {
	if r.deps.Snapshots == nil {
		return
	}
	snap, err := r.deps.Snapshots.LatestSnapshot(ctx, s.id)
	if errors.Is(err, db.ErrNoSnapshot) {
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("session_id", s.id).Warn("Could not load cart snapshot")
		return
	}
	items, err := snap.CartItems()
	if err != nil {
		logrus.WithError(err).WithField("session_id", s.id).Warn("Corrupt cart snapshot ignored")
		return
	}
	s.cart.Seed(items, snap.Count)
}

// Sweep drops sessions idle for longer than idle and returns how many were removed.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.cart.Close()
	}
	return len(stale)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
