package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	ErrInvalidBook     = errors.New("cart: book id required")
	ErrClosed          = errors.New("cart: store closed")
)

// PersistError reports a failed durable write. The in-memory change that
// triggered it stays applied; the next successful write carries it.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("cart: persist %q: %v", e.Key, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// Store owns one in-memory cart and keeps the durable copy under key in
// sync with it.
//
// Mutators apply their change in memory and notify subscribers before any
// I/O, so back-to-back calls always build on each other's results. Durable
// writes are serialized and every write carries the whole current cart,
// which makes the last completed write the latest state. A write error is
// returned to the caller without rolling back memory.
type Store struct {
	repo Repository
	key  string
	log  zerolog.Logger

	mu      sync.RWMutex
	lines   []Line
	version int64
	closed  bool
	pending sync.WaitGroup

	// guarded by wmu; -1 until memory is known to match the durable copy
	wmu     sync.Mutex
	written int64

	// subscribers only ever see increasing versions
	nmu       sync.Mutex
	delivered int64
	subMu     sync.Mutex
	subs      map[int]func(Snapshot)
	nextID    int
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

func NewStore(repo Repository, key string, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		key:     key,
		log:     zerolog.Nop(),
		written: -1,
		subs:    map[int]func(Snapshot){},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("cart", key).Logger()
	return s
}

func (s *Store) Key() string { return s.key }

// Refresh replaces the in-memory cart with the durable copy. A read error,
// a missing blob or a blob that does not decode leaves memory untouched, and
// so does any mutation applied while the blob was being read.
// It reports whether memory was replaced.
func (s *Store) Refresh(ctx context.Context) bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.RLock()
	base := s.version
	s.mu.RUnlock()

	data, err := s.repo.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh: read failed, keeping current cart")
		return false
	}
	lines, err := Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh: blob ignored, keeping current cart")
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.version != base {
		s.mu.Unlock()
		s.log.Debug().Int64("version", base).Msg("refresh: cart changed during read, keeping current cart")
		return false
	}
	s.lines = lines
	s.version++
	s.written = s.version
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return true
}

func (s *Store) QuantityOf(bookID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return quantityOf(s.lines, bookID)
}

func (s *Store) TotalItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemCount(s.lines)
}

// TotalAmount sums price x quantity using the price each line was added with.
func (s *Store) TotalAmount() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return total(s.lines)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// AddItem increments the line for book.ID by quantity, appending a new line
// with this book copy when there is none. Stock is not checked here.
func (s *Store) AddItem(ctx context.Context, book Book, quantity int) error {
	if book.ID == "" {
		return ErrInvalidBook
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return s.apply(ctx, func(lines []Line) ([]Line, bool) {
		if i := indexOf(lines, book.ID); i >= 0 {
			next := cloneLines(lines)
			next[i].Quantity += quantity
			return next, true
		}
		next := make([]Line, len(lines), len(lines)+1)
		copy(next, lines)
		return append(next, Line{Book: book, Quantity: quantity}), true
	})
}

// SetQuantity sets an existing line to quantity. quantity <= 0 removes the
// line; an id with no line is left alone since there is no book to add.
func (s *Store) SetQuantity(ctx context.Context, bookID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, bookID)
	}
	return s.apply(ctx, func(lines []Line) ([]Line, bool) {
		i := indexOf(lines, bookID)
		if i < 0 || lines[i].Quantity == quantity {
			return lines, false
		}
		next := cloneLines(lines)
		next[i].Quantity = quantity
		return next, true
	})
}

func (s *Store) RemoveItem(ctx context.Context, bookID string) error {
	return s.apply(ctx, func(lines []Line) ([]Line, bool) {
		i := indexOf(lines, bookID)
		if i < 0 {
			return lines, false
		}
		next := make([]Line, 0, len(lines)-1)
		next = append(next, lines[:i]...)
		return append(next, lines[i+1:]...), true
	})
}

// Clear empties the cart and persists the empty collection.
func (s *Store) Clear(ctx context.Context) error {
	return s.apply(ctx, func(lines []Line) ([]Line, bool) {
		return []Line{}, len(lines) > 0
	})
}

// ClearOrdered empties the cart after snap was turned into an order. If the
// cart changed since snap, only the ordered quantities are taken out and
// anything added later stays.
func (s *Store) ClearOrdered(ctx context.Context, snap Snapshot) error {
	return s.apply(ctx, func(lines []Line) ([]Line, bool) {
		// apply holds mu
		if s.version == snap.Version {
			return []Line{}, len(lines) > 0
		}
		next := make([]Line, 0, len(lines))
		for _, l := range lines {
			l.Quantity -= snap.QuantityOf(l.Book.ID)
			if l.Quantity > 0 {
				next = append(next, l)
			}
		}
		return next, !sameLines(lines, next)
	})
}

func sameLines(a, b []Line) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Book.ID != b[i].Book.ID || a[i].Quantity != b[i].Quantity {
			return false
		}
	}
	return true
}

// Discard empties the cart and deletes the durable blob. Used when the
// owning session ends.
func (s *Store) Discard(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	changed := len(s.lines) > 0
	if changed {
		s.lines = []Line{}
		s.version++
	}
	ver := s.version
	snap := s.snapshotLocked()
	s.pending.Add(1)
	s.mu.Unlock()
	defer s.pending.Done()
	if changed {
		s.publish(snap)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.repo.Delete(context.WithoutCancel(ctx), s.key); err != nil {
		return &PersistError{Key: s.key, Err: err}
	}
	if s.written < ver {
		s.written = ver
	}
	return nil
}

// Subscribe registers fn to receive a snapshot after every in-memory change.
// fn runs on the mutating goroutine and must not mutate the store itself.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Close waits for in-flight writes. Later mutators return ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pending.Wait()
}

func (s *Store) apply(ctx context.Context, fn func([]Line) ([]Line, bool)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, changed := fn(s.lines)
	if changed {
		s.lines = next
		s.version++
	}
	ver := s.version
	snap := s.snapshotLocked()
	s.pending.Add(1)
	s.mu.Unlock()
	defer s.pending.Done()

	if changed {
		s.publish(snap)
	}
	// the write is not cancelled with the caller's request
	return s.persist(context.WithoutCancel(ctx), ver)
}

func (s *Store) persist(ctx context.Context, ver int64) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.written >= ver {
		return nil
	}

	s.mu.RLock()
	cur := s.version
	data, err := Encode(s.lines)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := s.repo.Set(ctx, s.key, data); err != nil {
		s.log.Warn().Err(err).Int64("version", cur).Msg("persist failed")
		return &PersistError{Key: s.key, Err: err}
	}
	s.written = cur
	return nil
}

func (s *Store) publish(snap Snapshot) {
	s.nmu.Lock()
	defer s.nmu.Unlock()
	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Lines: cloneLines(s.lines), Version: s.version}
}
