package cart_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
)

func TestClampQuantity(t *testing.T) {
	b := book("a", 10, 3)
	assert.Equal(t, 2, cart.ClampQuantity(b, 2))
	assert.Equal(t, 3, cart.ClampQuantity(b, 9))
	assert.Equal(t, 0, cart.ClampQuantity(b, -1))
	assert.Equal(t, 0, cart.ClampQuantity(book("z", 10, 0), 1))
}

func TestCanIncrement(t *testing.T) {
	assert.True(t, cart.CanIncrement(cart.Line{Book: book("a", 1, 3), Quantity: 2}))
	assert.False(t, cart.CanIncrement(cart.Line{Book: book("a", 1, 3), Quantity: 3}))
}

func TestCheckAddable(t *testing.T) {
	assert.NoError(t, cart.CheckAddable(book("a", 1, 3), 3))
	assert.ErrorIs(t, cart.CheckAddable(book("a", 1, 3), 4), cart.ErrInsufficientStock)
}

func TestShortages(t *testing.T) {
	lines := []cart.Line{
		{Book: book("a", 1, 9), Quantity: 2},
		{Book: book("b", 1, 9), Quantity: 5},
		{Book: book("c", 1, 9), Quantity: 1},
	}
	got := cart.Shortages(lines, map[string]int{"a": 2, "b": 3})

	assert.Equal(t, []cart.Shortage{
		{BookID: "b", Title: "Book b", Requested: 5, Available: 3},
		{BookID: "c", Title: "Book c", Requested: 1, Available: 0},
	}, got)
	assert.Empty(t, cart.Shortages(lines[:1], map[string]int{"a": 2}))
}
