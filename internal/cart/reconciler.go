// Package cart keeps a session's view of the cart consistent with the external cart service.
// Removals are applied optimistically; additions and refreshes take the server's answer.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"henry/internal/models"
	"henry/internal/stream"
)

// DefaultAddedFlash is how long the "added" flag stays raised after a successful add.
const DefaultAddedFlash = 2 * time.Second

var (
	ErrNoRedirect  = errors.New("checkout returned no redirect url")
	ErrInvalidItem = errors.New("invalid cart item")
)

var validate = validator.New()

// Contents is the authoritative cart as reported by the service.
type Contents struct {
	Items []models.CartItem
	Count int
}

// AddRequest describes the product, variant, store and quantity being added.
type AddRequest struct {
	ProductID        string         `json:"productId" validate:"required"`
	Name             string         `json:"name" validate:"required"`
	Price            float64        `json:"price" validate:"gte=0"`
	Quantity         int            `json:"quantity" validate:"min=1,max=99"`
	ProductImageLink string         `json:"productImageLink,omitempty"`
	ProductLink      string         `json:"productLink,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Service is the external cart, already bound to one session.
type Service interface {
	ListItems(ctx context.Context) (Contents, error)
	AddItem(ctx context.Context, req AddRequest) error
	RemoveItem(ctx context.Context, productID string) error
	CreateCheckout(ctx context.Context) (string, error)
}

// Publisher receives an event after every applied cart change.
type Publisher interface {
	Publish(ctx context.Context, event models.CartEvent) error
}

type Op string

const (
	OpAdd      Op = "add"
	OpRemove   Op = "remove"
	OpRefresh  Op = "refresh"
	OpCheckout Op = "checkout"
)

// OpState is the idle → pending → success|error state of one cart operation.
type OpState struct {
	Status  stream.Status `json:"status"`
	Message string        `json:"error,omitempty"`
}

// Snapshot is a renderable copy of the reconciler state.
type Snapshot struct {
	Items       []models.CartItem `json:"items"`
	Count       int               `json:"count"`
	Added       bool              `json:"added"`
	CheckoutURL string            `json:"checkoutUrl,omitempty"`
	Ops         map[Op]OpState    `json:"ops"`
}

type Option func(*Reconciler)

func WithPublisher(p Publisher) Option {
	return func(r *Reconciler) { r.pub = p }
}

func WithAddedFlash(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.flash = d
		}
	}
}

type Reconciler struct {
	sessionID string
	svc       Service
	pub       Publisher
	flash     time.Duration

	mu          sync.Mutex
	items       []models.CartItem
	count       int
	loaded      bool
	added       bool
	addedGen    uint64
	addedTimer  *time.Timer
	refreshSeq  uint64
	checkoutURL string
	ops         map[Op]OpState
}

func NewReconciler(sessionID string, svc Service, opts ...Option) *Reconciler {
	r := &Reconciler{
		sessionID: sessionID,
		svc:       svc,
		flash:     DefaultAddedFlash,
		items:     []models.CartItem{},
		ops: map[Op]OpState{
			OpAdd:      {Status: stream.StatusIdle},
			OpRemove:   {Status: stream.StatusIdle},
			OpRefresh:  {Status: stream.StatusIdle},
			OpCheckout: {Status: stream.StatusIdle},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed installs a previously persisted snapshot. It is ignored once the cart has been loaded
// from the service.
func (r *Reconciler) Seed(items []models.CartItem, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return
	}
	r.items = append([]models.CartItem{}, items...)
	r.count = max(count, 0)
}

// Add adds one product to the cart. On success the added flag is raised and the count is
// refreshed from the service rather than incremented locally.
func (r *Reconciler) Add(ctx context.Context, req AddRequest) error {
	if err := validate.Struct(req); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidItem, err)
		r.setOp(OpAdd, stream.StatusError, err)
		logrus.WithError(err).WithField("session_id", r.sessionID).Error("Rejected cart item")
		return err
	}
	r.setOp(OpAdd, stream.StatusPending, nil)

	if err := r.svc.AddItem(ctx, req); err != nil {
		r.setOp(OpAdd, stream.StatusError, err)
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": r.sessionID,
			"product_id": req.ProductID,
		}).Error("Failed to add item to cart")
		return err
	}

	r.mu.Lock()
	r.raiseAddedLocked()
	r.ops[OpAdd] = OpState{Status: stream.StatusSuccess}
	r.mu.Unlock()

	r.publish(ctx, models.CartEventAdded, req.ProductID)

	if err := r.Refresh(ctx); err != nil {
		logrus.WithError(err).WithField("session_id", r.sessionID).Warn("Cart refresh after add failed")
	}
	return nil
}

func (r *Reconciler) raiseAddedLocked() {
	r.added = true
	r.addedGen++
	gen := r.addedGen
	if r.addedTimer != nil {
		r.addedTimer.Stop()
	}
	r.addedTimer = time.AfterFunc(r.flash, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.addedGen == gen {
			r.added = false
		}
	})
}

// Remove drops the item and decrements the count before calling the service. A failed call
// is reported but the local removal stands until the next refresh.
func (r *Reconciler) Remove(ctx context.Context, productID string) error {
	r.mu.Lock()
	kept := r.items[:0:0]
	removed := false
	for _, item := range r.items {
		if item.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	r.items = kept
	if removed {
		r.count = max(r.count-1, 0)
	}
	r.ops[OpRemove] = OpState{Status: stream.StatusPending}
	r.mu.Unlock()

	if err := r.svc.RemoveItem(ctx, productID); err != nil {
		r.setOp(OpRemove, stream.StatusError, err)
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": r.sessionID,
			"product_id": productID,
		}).Error("Failed to remove item from cart")
		return err
	}

	r.setOp(OpRemove, stream.StatusSuccess, nil)
	r.publish(ctx, models.CartEventRemoved, productID)
	return nil
}

// Refresh replaces the local cart with the service's. Only the most recently started refresh
// is applied.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.refreshSeq++
	seq := r.refreshSeq
	r.ops[OpRefresh] = OpState{Status: stream.StatusPending}
	r.mu.Unlock()

	contents, err := r.svc.ListItems(ctx)

	r.mu.Lock()
	if seq != r.refreshSeq {
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		r.ops[OpRefresh] = OpState{Status: stream.StatusError, Message: err.Error()}
		r.mu.Unlock()
		logrus.WithError(err).WithField("session_id", r.sessionID).Error("Failed to refresh cart")
		return err
	}
	r.items = append([]models.CartItem{}, contents.Items...)
	r.count = max(contents.Count, 0)
	r.loaded = true
	r.ops[OpRefresh] = OpState{Status: stream.StatusSuccess}
	r.mu.Unlock()

	r.publish(ctx, models.CartEventRefreshed, "")
	return nil
}

// Checkout creates a checkout session and returns its redirect URL. Navigation is left to the
// caller.
func (r *Reconciler) Checkout(ctx context.Context) (string, error) {
	r.setOp(OpCheckout, stream.StatusPending, nil)

	url, err := r.svc.CreateCheckout(ctx)
	if err == nil && url == "" {
		err = ErrNoRedirect
	}
	if err != nil {
		r.setOp(OpCheckout, stream.StatusError, err)
		logrus.WithError(err).WithField("session_id", r.sessionID).Error("Failed to create checkout")
		return "", err
	}

	r.mu.Lock()
	r.checkoutURL = url
	r.ops[OpCheckout] = OpState{Status: stream.StatusSuccess}
	r.mu.Unlock()

	r.publish(ctx, models.CartEventCheckout, "")
	return url, nil
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	ops := make(map[Op]OpState, len(r.ops))
	for k, v := range r.ops {
		ops[k] = v
	}
	return Snapshot{
		Items:       append([]models.CartItem{}, r.items...),
		Count:       r.count,
		Added:       r.added,
		CheckoutURL: r.checkoutURL,
		Ops:         ops,
	}
}

// Close stops the pending added-flag timer.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addedTimer != nil {
		r.addedTimer.Stop()
		r.addedTimer = nil
	}
}

func (r *Reconciler) setOp(op Op, status stream.Status, err error) {
	state := OpState{Status: status}
	if err != nil {
		state.Message = err.Error()
	}
	r.mu.Lock()
	r.ops[op] = state
	r.mu.Unlock()
}

func (r *Reconciler) publish(ctx context.Context, kind models.CartEventKind, productID string) {
	if r.pub == nil {
		return
	}
	snap := r.Snapshot()
	event := models.CartEvent{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		Kind:      kind,
		ProductID: productID,
		Items:     snap.Items,
		Count:     snap.Count,
		At:        time.Now().UTC(),
	}
	if err := r.pub.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": r.sessionID,
			"kind":       kind,
		}).Warn("Failed to publish cart event")
	}
}
