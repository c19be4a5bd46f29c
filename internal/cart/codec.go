package cart

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("cart: malformed blob")

// Encode serializes the whole cart as a JSON array of {book, quantity}.
func Encode(lines []Line) ([]byte, error) {
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(lines)
}

// Decode parses a persisted cart. Lines without a book id or with a
// non-positive quantity are dropped and duplicate ids are merged into the
// first occurrence, so the result always satisfies the line invariants.
func Decode(data []byte) ([]Line, error) {
	var raw []Line
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not a cart collection", ErrMalformed)
	}
	out := make([]Line, 0, len(raw))
	for _, l := range raw {
		if l.Book.ID == "" || l.Quantity <= 0 {
			continue
		}
		if i := indexOf(out, l.Book.ID); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
