// Package notify keeps the short-lived toast messages shown to a session.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 3 * time.Second

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type Center struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	notices []Notice
	subs    map[int]func(Notice)
	nextID  int
}

func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{ttl: ttl, now: time.Now, subs: map[int]func(Notice){}}
}

func (c *Center) Success(msg string) Notice { return c.Push(LevelSuccess, msg) }
func (c *Center) Error(msg string) Notice   { return c.Push(LevelError, msg) }
func (c *Center) Info(msg string) Notice    { return c.Push(LevelInfo, msg) }

func (c *Center) Push(level Level, msg string) Notice {
	n := Notice{ID: uuid.NewString(), Level: level, Message: msg, CreatedAt: c.now()}
	c.mu.Lock()
	c.prune()
	c.notices = append(c.notices, n)
	fns := make([]func(Notice), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
	return n
}

// Active returns the notices that have not expired yet, oldest first.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	return append([]Notice(nil), c.notices...)
}

func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i:i], c.notices[i+1:]...)
			return
		}
	}
}

func (c *Center) Subscribe(fn func(Notice)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Center) prune() {
	cutoff := c.now().Add(-c.ttl)
	i := 0
	for i < len(c.notices) && !c.notices[i].CreatedAt.After(cutoff) {
		i++
	}
	c.notices = c.notices[i:]
}
