package cart_test

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
)

const key = "cart:test"

func book(id string, price int64, stock int) cart.Book {
	return cart.Book{ID: id, Title: "Book " + id, Author: "Author", Price: decimal.NewFromInt(price), Stock: stock}
}

// failingRepo fails every call until healed.
type failingRepo struct {
	cart.Repository
	mu     sync.Mutex
	failW  bool
	failR  bool
	writes int
}

func (r *failingRepo) Get(ctx context.Context, k string) ([]byte, error) {
	r.mu.Lock()
	fail := r.failR
	r.mu.Unlock()
	if fail {
		return nil, errors.New("disk unavailable")
	}
	return r.Repository.Get(ctx, k)
}

func (r *failingRepo) Set(ctx context.Context, k string, data []byte) error {
	r.mu.Lock()
	r.writes++
	fail := r.failW
	r.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return r.Repository.Set(ctx, k, data)
}

// gatedRepo blocks the first write until released so a later write can
// overtake it.
type gatedRepo struct {
	cart.Repository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{Repository: cart.NewMemoryRepo(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedRepo) Set(ctx context.Context, k string, data []byte) error {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return r.Repository.Set(ctx, k, data)
}

func persisted(t *testing.T, repo cart.Repository) []cart.Line {
	t.Helper()
	data, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	lines, err := cart.Decode(data)
	require.NoError(t, err)
	return lines
}

func TestStore_AddItemIncrementsExistingLine(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	b := book("a", 100, 10)

	require.NoError(t, s.AddItem(ctx, b, 2))
	require.NoError(t, s.AddItem(ctx, b, 3))

	assert.Equal(t, 5, s.QuantityOf("a"))
	assert.Len(t, s.Snapshot().Lines, 1)
}

func TestStore_AddItemIgnoresStock(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	b := book("a", 100, 1)

	require.NoError(t, s.AddItem(ctx, b, 1))
	require.NoError(t, s.AddItem(ctx, b, 1))

	// the store is a plain container; stock is the caller's policy
	assert.Equal(t, 2, s.QuantityOf("a"))
	assert.False(t, cart.CanIncrement(s.Snapshot().Lines[0]))
}

func TestStore_AddItemKeepsFirstSnapshot(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)

	require.NoError(t, s.AddItem(ctx, book("a", 100, 10), 1))
	require.NoError(t, s.AddItem(ctx, book("a", 999, 10), 1))

	assert.True(t, decimal.NewFromInt(200).Equal(s.TotalAmount()))
}

func TestStore_AddItemRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{Repository: cart.NewMemoryRepo()}
	s := cart.NewStore(repo, key)

	assert.ErrorIs(t, s.AddItem(ctx, book("a", 1, 1), 0), cart.ErrInvalidQuantity)
	assert.ErrorIs(t, s.AddItem(ctx, book("a", 1, 1), -2), cart.ErrInvalidQuantity)
	assert.ErrorIs(t, s.AddItem(ctx, cart.Book{}, 1), cart.ErrInvalidBook)
	assert.Zero(t, s.TotalItemCount())
	assert.Zero(t, repo.writes)
}

func TestStore_SetQuantity(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 10), 1))

	require.NoError(t, s.SetQuantity(ctx, "a", 4))
	assert.Equal(t, 4, s.QuantityOf("a"))

	// unknown id is a no-op
	require.NoError(t, s.SetQuantity(ctx, "missing", 3))
	assert.Equal(t, 0, s.QuantityOf("missing"))
	assert.Len(t, s.Snapshot().Lines, 1)

	require.NoError(t, s.SetQuantity(ctx, "a", 0))
	assert.Equal(t, 0, s.QuantityOf("a"))
	assert.Empty(t, s.Snapshot().Lines)
	assert.Empty(t, persisted(t, repo))
}

func TestStore_RemoveItemIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 10), 2))
	before := s.Snapshot()

	require.NoError(t, s.RemoveItem(ctx, "zzz"))
	assert.Equal(t, before, s.Snapshot())

	require.NoError(t, s.RemoveItem(ctx, "a"))
	require.NoError(t, s.RemoveItem(ctx, "a"))
	assert.Zero(t, s.TotalItemCount())
}

func TestStore_Totals(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	require.NoError(t, s.AddItem(ctx, book("A", 100, 5), 2))
	require.NoError(t, s.AddItem(ctx, book("B", 50, 5), 1))

	assert.True(t, decimal.NewFromInt(250).Equal(s.TotalAmount()))
	assert.Equal(t, 3, s.TotalItemCount())

	other := cart.NewStore(cart.NewMemoryRepo(), key)
	require.NoError(t, other.AddItem(ctx, book("B", 50, 5), 1))
	require.NoError(t, other.AddItem(ctx, book("A", 100, 5), 2))
	assert.True(t, s.TotalAmount().Equal(other.TotalAmount()))
}

func TestStore_DecimalPrices(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	b := book("a", 0, 5)
	b.Price = decimal.RequireFromString("1250.75")
	require.NoError(t, s.AddItem(ctx, b, 3))

	assert.Equal(t, "3752.25", s.TotalAmount().StringFixed(2))
}

func TestStore_ClearPersistsEmptyCollection(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))

	require.NoError(t, s.Clear(ctx))

	assert.Zero(t, s.TotalItemCount())
	data, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestStore_ClearOverwritesStaleBlob(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	require.NoError(t, cart.NewStore(repo, key).AddItem(ctx, book("a", 1, 1), 1))

	// never refreshed, so the old blob is still out there
	s := cart.NewStore(repo, key)
	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, persisted(t, repo))
}

func TestStore_RoundTripThroughFreshStore(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))
	require.NoError(t, s.AddItem(ctx, book("b", 40, 5), 1))
	require.NoError(t, s.AddItem(ctx, book("c", 10, 5), 7))
	require.NoError(t, s.RemoveItem(ctx, "b"))

	fresh := cart.NewStore(repo, key)
	require.True(t, fresh.Refresh(ctx))

	assert.Equal(t, pairs(s.Snapshot()), pairs(fresh.Snapshot()))
	assert.True(t, s.TotalAmount().Equal(fresh.TotalAmount()))
}

func TestStore_RoundTripSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := cart.OpenSQLite(ctx, filepath.Join(t.TempDir(), "carts.db"))
	require.NoError(t, err)
	defer db.Close()

	s := cart.NewStore(cart.NewSQLiteRepo(db), key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))
	require.NoError(t, s.SetQuantity(ctx, "a", 3))

	fresh := cart.NewStore(cart.NewSQLiteRepo(db), key)
	require.True(t, fresh.Refresh(ctx))
	assert.Equal(t, 3, fresh.QuantityOf("a"))
}

func TestStore_RefreshKeepsStateOnReadFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{Repository: cart.NewMemoryRepo()}
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))

	repo.failR = true
	assert.False(t, s.Refresh(ctx))
	assert.Equal(t, 2, s.QuantityOf("a"))
}

func TestStore_RefreshKeepsStateOnMalformedBlob(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))

	require.NoError(t, repo.Set(ctx, key, []byte(`{"not":"a list"}`)))
	assert.False(t, s.Refresh(ctx))
	assert.Equal(t, 2, s.QuantityOf("a"))
}

func TestStore_RefreshMissingBlobIsNoop(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	assert.False(t, s.Refresh(ctx))
	assert.True(t, s.Snapshot().Empty())
}

func TestStore_RefreshKeepsStateOnNullBlob(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))

	require.NoError(t, repo.Set(ctx, key, []byte(`null`)))
	assert.False(t, s.Refresh(ctx))
	assert.Equal(t, 2, s.QuantityOf("a"))
}

// slowReadRepo blocks the first read until released.
type slowReadRepo struct {
	cart.Repository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *slowReadRepo) Get(ctx context.Context, k string) ([]byte, error) {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return r.Repository.Get(ctx, k)
}

func TestStore_RefreshDoesNotUndoConcurrentMutation(t *testing.T) {
	ctx := context.Background()
	repo := &slowReadRepo{Repository: cart.NewMemoryRepo(), entered: make(chan struct{}), release: make(chan struct{})}
	old, err := cart.Encode([]cart.Line{{Book: book("b", 50, 5), Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, repo.Repository.Set(ctx, key, old))
	s := cart.NewStore(repo, key)

	var g errgroup.Group
	var refreshed bool
	g.Go(func() error {
		refreshed = s.Refresh(ctx)
		return nil
	})
	<-repo.entered

	g.Go(func() error { return s.AddItem(ctx, book("a", 100, 5), 2) })
	require.Eventually(t, func() bool { return s.QuantityOf("a") == 2 }, time.Second, time.Millisecond)

	close(repo.release)
	require.NoError(t, g.Wait())

	assert.False(t, refreshed)
	assert.Equal(t, 2, s.QuantityOf("a"))
	assert.Equal(t, map[string]int{"a": 2}, pairs(cart.Snapshot{Lines: persisted(t, repo)}))
}

func TestStore_ClearOrderedUnchangedCartEmpties(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))

	require.NoError(t, s.ClearOrdered(ctx, s.Snapshot()))

	assert.True(t, s.Snapshot().Empty())
	data, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestStore_ClearOrderedKeepsLaterAdditions(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 2))
	ordered := s.Snapshot()

	require.NoError(t, s.AddItem(ctx, book("a", 100, 5), 1))
	require.NoError(t, s.AddItem(ctx, book("b", 50, 5), 3))

	require.NoError(t, s.ClearOrdered(ctx, ordered))

	assert.Equal(t, map[string]int{"a": 1, "b": 3}, pairs(s.Snapshot()))
	assert.Equal(t, map[string]int{"a": 1, "b": 3}, pairs(cart.Snapshot{Lines: persisted(t, repo)}))
}

func TestStore_WriteFailureKeepsMemoryAndRetries(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{Repository: cart.NewMemoryRepo()}
	s := cart.NewStore(repo, key)

	repo.failW = true
	err := s.AddItem(ctx, book("a", 100, 5), 2)
	var perr *cart.PersistError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, key, perr.Key)
	assert.Equal(t, 2, s.QuantityOf("a"))

	// an unchanged mutation still retries the pending write
	repo.failW = false
	require.NoError(t, s.RemoveItem(ctx, "nothing"))
	got := persisted(t, repo)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Quantity)
}

func TestStore_LaterWriteWinsWhenEarlierIsSlow(t *testing.T) {
	ctx := context.Background()
	repo := newGatedRepo()
	s := cart.NewStore(repo, key)

	var g errgroup.Group
	g.Go(func() error { return s.AddItem(ctx, book("b", 10, 10), 1) })
	<-repo.entered

	// both mutations apply in memory while the first write is stuck
	g.Go(func() error { return s.SetQuantity(ctx, "b", 5) })
	require.Eventually(t, func() bool { return s.QuantityOf("b") == 5 }, time.Second, time.Millisecond)
	g.Go(func() error { return s.SetQuantity(ctx, "b", 7) })
	require.Eventually(t, func() bool { return s.QuantityOf("b") == 7 }, time.Second, time.Millisecond)

	close(repo.release)
	require.NoError(t, g.Wait())

	got := persisted(t, repo)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].Quantity)
}

func TestStore_SetQuantityWithoutAwaitingEndsAtLastValue(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("b", 10, 10), 1))

	first := make(chan error, 1)
	go func() { first <- s.SetQuantity(ctx, "b", 5) }()
	second := s.SetQuantity(ctx, "b", 7)
	require.NoError(t, <-first)
	require.NoError(t, second)

	// either order of application is possible here; what must hold is that
	// memory and the durable copy agree once both writes settle
	mem := s.QuantityOf("b")
	got := persisted(t, repo)
	require.Len(t, got, 1)
	assert.Equal(t, mem, got[0].Quantity)
}

func TestStore_ConcurrentAddItemIncrement(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	b := book("p", 1, 0)

	const N = 100
	var g errgroup.Group
	for i := 0; i < N; i++ {
		g.Go(func() error { return s.AddItem(ctx, b, 1) })
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, N, s.QuantityOf("p"))
	assert.Len(t, s.Snapshot().Lines, 1)
	got := persisted(t, repo)
	require.Len(t, got, 1)
	assert.Equal(t, N, got[0].Quantity)
}

func TestStore_OneLinePerBookUnderMixedCalls(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	ids := []string{"a", "b", "c"}

	var g errgroup.Group
	for i := 0; i < 60; i++ {
		i := i
		id := ids[i%len(ids)]
		switch i % 4 {
		case 0, 1:
			g.Go(func() error { return s.AddItem(ctx, book(id, 1, 1), 1) })
		case 2:
			g.Go(func() error { return s.SetQuantity(ctx, id, i%5) })
		default:
			g.Go(func() error { return s.RemoveItem(ctx, id) })
		}
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, l := range s.Snapshot().Lines {
		assert.False(t, seen[l.Book.ID], "duplicate line for %s", l.Book.ID)
		assert.Positive(t, l.Quantity)
		seen[l.Book.ID] = true
	}
}

func TestStore_SubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)

	var counts []int
	cancel := s.Subscribe(func(snap cart.Snapshot) {
		counts = append(counts, snap.ItemCount())
		// reading the store from a callback is allowed
		_ = s.TotalItemCount()
	})

	require.NoError(t, s.AddItem(ctx, book("a", 1, 5), 2))
	require.NoError(t, s.RemoveItem(ctx, "missing"))
	require.NoError(t, s.SetQuantity(ctx, "a", 4))
	cancel()
	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, []int{2, 4}, counts)
}

func TestStore_SubscribersSeeIncreasingVersions(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)

	var mu sync.Mutex
	var versions []int64
	s.Subscribe(func(snap cart.Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error { return s.AddItem(ctx, book("a", 1, 1), 1) })
	}
	require.NoError(t, g.Wait())

	require.NotEmpty(t, versions)
	assert.True(t, sort.SliceIsSorted(versions, func(i, j int) bool { return versions[i] < versions[j] }))
	assert.Equal(t, s.Snapshot().Version, versions[len(versions)-1])
}

func TestStore_DiscardDeletesBlob(t *testing.T) {
	ctx := context.Background()
	repo := cart.NewMemoryRepo()
	s := cart.NewStore(repo, key)
	require.NoError(t, s.AddItem(ctx, book("a", 1, 5), 1))

	require.NoError(t, s.Discard(ctx))

	assert.Zero(t, s.TotalItemCount())
	_, err := repo.Get(ctx, key)
	assert.ErrorIs(t, err, cart.ErrNotFound)
}

func TestStore_ClosedRejectsMutations(t *testing.T) {
	ctx := context.Background()
	s := cart.NewStore(cart.NewMemoryRepo(), key)
	s.Close()

	assert.ErrorIs(t, s.AddItem(ctx, book("a", 1, 5), 1), cart.ErrClosed)
	assert.ErrorIs(t, s.Clear(ctx), cart.ErrClosed)
}

func pairs(s cart.Snapshot) map[string]int {
	out := map[string]int{}
	for _, l := range s.Lines {
		out[l.Book.ID] = l.Quantity
	}
	return out
}
