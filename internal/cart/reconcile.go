package cart

import (
	"errors"
	"fmt"
)

// Stock rules applied by callers before they mutate the store. The store
// itself never looks at Book.Stock.

var ErrInsufficientStock = errors.New("insufficient stock")

// ClampQuantity limits requested to the last known stock of book.
func ClampQuantity(book Book, requested int) int {
	if requested > book.Stock {
		requested = book.Stock
	}
	if requested < 0 {
		return 0
	}
	return requested
}

// CanIncrement reports whether the "+" control may raise this line.
func CanIncrement(l Line) bool { return l.Quantity < l.Book.Stock }

// CheckAddable is the add-to-cart check of the book page: it compares the
// requested amount with stock and ignores what is already in the cart.
func CheckAddable(book Book, quantity int) error {
	if book.Stock < quantity {
		return fmt.Errorf("%w: %q has %d, requested %d", ErrInsufficientStock, book.Title, book.Stock, quantity)
	}
	return nil
}

type Shortage struct {
	BookID    string `json:"bookId"`
	Title     string `json:"title"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Shortages lists lines asking for more than live stock. A book missing from
// live counts as zero available.
func Shortages(lines []Line, live map[string]int) []Shortage {
	var out []Shortage
	for _, l := range lines {
		have := live[l.Book.ID]
		if have < l.Quantity {
			out = append(out, Shortage{
				BookID:    l.Book.ID,
				Title:     l.Book.Title,
				Requested: l.Quantity,
				Available: have,
			})
		}
	}
	return out
}
