package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"henry/internal/models"
	"henry/internal/stream"
)

type fakeService struct {
	mu        sync.Mutex
	contents  Contents
	listErr   error
	addErr    error
	removeErr error
	checkout  string
	checkErr  error

	removeGate chan struct{}
	added      []AddRequest
	removed    []string
}

func (f *fakeService) ListItems(context.Context) (Contents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return Contents{}, f.listErr
	}
	return Contents{Items: append([]models.CartItem{}, f.contents.Items...), Count: f.contents.Count}, nil
}

func (f *fakeService) AddItem(_ context.Context, req AddRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, req)
	f.contents.Items = append(f.contents.Items, models.CartItem{ProductID: req.ProductID, Name: req.Name, Quantity: req.Quantity})
	f.contents.Count += req.Quantity
	return nil
}

func (f *fakeService) RemoveItem(_ context.Context, productID string) error {
	if f.removeGate != nil {
		<-f.removeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, productID)
	return f.removeErr
}

func (f *fakeService) CreateCheckout(context.Context) (string, error) {
	return f.checkout, f.checkErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.CartEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e models.CartEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []models.CartEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.CartEventKind
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestAddRefreshesFromServer(t *testing.T) {
	svc := &fakeService{contents: Contents{
		Items: []models.CartItem{{ProductID: "existing", Quantity: 1}},
		Count: 1,
	}}
	pub := &recordingPublisher{}
	r := NewReconciler("sess-1", svc, WithPublisher(pub), WithAddedFlash(time.Hour))
	defer r.Close()

	err := r.Add(context.Background(), AddRequest{ProductID: "p1", Name: "Runner", Price: 99.99, Quantity: 2})
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.True(t, snap.Added)
	assert.Equal(t, 3, snap.Count, "count comes from the server")
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, stream.StatusSuccess, snap.Ops[OpAdd].Status)
	assert.Equal(t, stream.StatusSuccess, snap.Ops[OpRefresh].Status)
	assert.Equal(t, []models.CartEventKind{models.CartEventAdded, models.CartEventRefreshed}, pub.kinds())

	for _, e := range pub.events {
		assert.Equal(t, "sess-1", e.SessionID)
		assert.NotEmpty(t, e.ID)
	}
}

func TestAddedFlagClears(t *testing.T) {
	svc := &fakeService{}
	r := NewReconciler("sess", svc, WithAddedFlash(20*time.Millisecond))
	defer r.Close()

	require.NoError(t, r.Add(context.Background(), AddRequest{ProductID: "p1", Name: "x", Quantity: 1}))
	assert.True(t, r.Snapshot().Added)
	assert.Eventually(t, func() bool { return !r.Snapshot().Added }, time.Second, 5*time.Millisecond)
}

func TestAddFailure(t *testing.T) {
	svc := &fakeService{addErr: errors.New("out of stock")}
	r := NewReconciler("sess", svc)

	err := r.Add(context.Background(), AddRequest{ProductID: "p1", Name: "x", Quantity: 1})
	require.Error(t, err)

	snap := r.Snapshot()
	assert.False(t, snap.Added)
	assert.Equal(t, stream.StatusError, snap.Ops[OpAdd].Status)
	assert.Equal(t, "out of stock", snap.Ops[OpAdd].Message)
	assert.Equal(t, stream.StatusIdle, snap.Ops[OpRefresh].Status)
}

func TestAddRejectsInvalidItem(t *testing.T) {
	cases := []struct {
		name string
		req  AddRequest
	}{
		{"missing name", AddRequest{ProductID: "p1", Quantity: 1}},
		{"missing product id", AddRequest{Name: "Runner", Quantity: 1}},
		{"zero quantity", AddRequest{ProductID: "p1", Name: "Runner"}},
		{"quantity above limit", AddRequest{ProductID: "p1", Name: "Runner", Quantity: 100}},
		{"negative price", AddRequest{ProductID: "p1", Name: "Runner", Quantity: 1, Price: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{}
			r := NewReconciler("sess", svc)

			err := r.Add(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidItem)
			assert.Empty(t, svc.added, "nothing reaches the service")
			assert.Equal(t, stream.StatusError, r.Snapshot().Ops[OpAdd].Status)
		})
	}
}

func TestRemoveIsOptimistic(t *testing.T) {
	svc := &fakeService{
		contents: Contents{
			Items: []models.CartItem{{ProductID: "a"}, {ProductID: "b"}},
			Count: 2,
		},
		removeGate: make(chan struct{}),
	}
	r := NewReconciler("sess", svc)
	require.NoError(t, r.Refresh(context.Background()))

	done := make(chan error, 1)
	go func() { done <- r.Remove(context.Background(), "a") }()

	require.Eventually(t, func() bool {
		return r.Snapshot().Ops[OpRemove].Status == stream.StatusPending
	}, time.Second, time.Millisecond)

	snap := r.Snapshot()
	assert.Equal(t, 1, snap.Count, "count drops before the service answers")
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "b", snap.Items[0].ProductID)

	close(svc.removeGate)
	require.NoError(t, <-done)
	assert.Equal(t, stream.StatusSuccess, r.Snapshot().Ops[OpRemove].Status)
}

func TestRemoveFailureKeepsLocalRemoval(t *testing.T) {
	svc := &fakeService{
		contents:  Contents{Items: []models.CartItem{{ProductID: "a"}}, Count: 1},
		removeErr: errors.New("upstream 500"),
	}
	r := NewReconciler("sess", svc)
	require.NoError(t, r.Refresh(context.Background()))

	err := r.Remove(context.Background(), "a")
	require.Error(t, err)

	snap := r.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.Count)
	assert.Equal(t, stream.StatusError, snap.Ops[OpRemove].Status)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Len(t, r.Snapshot().Items, 1, "the next refresh restores the server's view")
}

func TestRemoveNeverGoesNegative(t *testing.T) {
	svc := &fakeService{}
	r := NewReconciler("sess", svc)
	r.Seed([]models.CartItem{{ProductID: "a"}}, 0)

	require.NoError(t, r.Remove(context.Background(), "a"))
	assert.Equal(t, 0, r.Snapshot().Count)
}

func TestRefreshFailure(t *testing.T) {
	svc := &fakeService{listErr: errors.New("timeout")}
	r := NewReconciler("sess", svc)
	r.Seed([]models.CartItem{{ProductID: "seeded"}}, 1)

	require.Error(t, r.Refresh(context.Background()))
	snap := r.Snapshot()
	assert.Equal(t, stream.StatusError, snap.Ops[OpRefresh].Status)
	assert.Len(t, snap.Items, 1, "previous items survive a failed refresh")
}

func TestSeedIgnoredAfterLoad(t *testing.T) {
	svc := &fakeService{contents: Contents{Count: 0}}
	r := NewReconciler("sess", svc)
	require.NoError(t, r.Refresh(context.Background()))

	r.Seed([]models.CartItem{{ProductID: "stale"}}, 4)
	snap := r.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.Count)
}

func TestCheckout(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		pub := &recordingPublisher{}
		r := NewReconciler("sess", &fakeService{checkout: "https://checkout.example/abc"}, WithPublisher(pub))

		url, err := r.Checkout(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.example/abc", url)
		assert.Equal(t, url, r.Snapshot().CheckoutURL)
		assert.Equal(t, []models.CartEventKind{models.CartEventCheckout}, pub.kinds())
	})

	t.Run("Missing redirect", func(t *testing.T) {
		r := NewReconciler("sess", &fakeService{})
		_, err := r.Checkout(context.Background())
		assert.ErrorIs(t, err, ErrNoRedirect)
		assert.Equal(t, stream.StatusError, r.Snapshot().Ops[OpCheckout].Status)
	})

	t.Run("Service error", func(t *testing.T) {
		r := NewReconciler("sess", &fakeService{checkErr: errors.New("declined")})
		_, err := r.Checkout(context.Background())
		assert.EqualError(t, err, "declined")
	})
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	r := NewReconciler("sess", &fakeService{}, WithPublisher(pub))
	assert.NoError(t, r.Refresh(context.Background()))
	assert.Len(t, pub.events, 1)
}
