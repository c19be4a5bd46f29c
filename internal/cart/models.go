package cart

import "github.com/shopspring/decimal"

// Book is the catalog record as the cart sees it. Lines keep a copy taken
// when the book was added; Stock is the last value the server reported and
// may be stale.
type Book struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	Price          decimal.Decimal `json:"price"`
	Category       string          `json:"category,omitempty"`
	ClassFormLevel string          `json:"classFormLevel,omitempty"`
	Stock          int             `json:"stock"`
	CoverImage     string          `json:"coverImage,omitempty"`
	CreatedByID    string          `json:"createdById,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
}

// Line is one (book, quantity) entry. Quantity is always >= 1.
type Line struct {
	Book     Book `json:"book"`
	Quantity int  `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Book.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is a read-only copy of the cart at a given version.
type Snapshot struct {
	Lines   []Line
	Version int64
}

func (s Snapshot) QuantityOf(bookID string) int { return quantityOf(s.Lines, bookID) }
func (s Snapshot) ItemCount() int               { return itemCount(s.Lines) }
func (s Snapshot) Total() decimal.Decimal       { return total(s.Lines) }
func (s Snapshot) Empty() bool                  { return len(s.Lines) == 0 }

func indexOf(lines []Line, bookID string) int {
	for i := range lines {
		if lines[i].Book.ID == bookID {
			return i
		}
	}
	return -1
}

func quantityOf(lines []Line, bookID string) int {
	if i := indexOf(lines, bookID); i >= 0 {
		return lines[i].Quantity
	}
	return 0
}

func itemCount(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}
