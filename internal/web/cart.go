package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
	"github.com/ahinestrog/fubooks-storefront/internal/session"
)

const saveFailedMsg = "your cart could not be saved, it will be retried with your next change"

// shopper reports whether sess may change its cart, answering the request
// when it may not.
func (s *Server) shopper(w http.ResponseWriter, sess *session.Session) bool {
	switch {
	case !sess.Authenticated():
		s.fail(w, sess, errSignIn)
		return false
	case sess.IsAdmin():
		s.fail(w, sess, errAdminCart)
		return false
	}
	return true
}

// mutated answers a cart mutation. A failed durable write still returns the
// applied cart, flagged as unsaved.
func (s *Server) mutated(w http.ResponseWriter, sess *session.Session, err error, okMsg string) {
	saved := true
	var pe *cart.PersistError
	switch {
	case errors.As(err, &pe):
		saved = false
		s.log.Warn().Err(err).Str("session", sess.ID).Msg("cart not saved")
		sess.Notices.Error(saveFailedMsg)
	case err != nil:
		s.fail(w, sess, err)
		return
	case okMsg != "":
		sess.Notices.Success(okMsg)
	}
	writeJSON(w, http.StatusOK, mutationResponse{Cart: viewOf(sess.Cart.Snapshot()), Saved: saved})
}

func lineOf(sess *session.Session, bookID string) (cart.Line, bool) {
	for _, l := range sess.Cart.Snapshot().Lines {
		if l.Book.ID == bookID {
			return l, true
		}
	}
	return cart.Line{}, false
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(sessionFrom(r).Cart.Snapshot()))
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.shopper(w, sess) {
		return
	}
	var in struct {
		BookID   string `json:"bookId"`
		Quantity *int   `json:"quantity"`
	}
	if err := decode(r, &in); err != nil {
		s.fail(w, sess, err)
		return
	}
	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	if in.BookID == "" {
		s.fail(w, sess, cart.ErrInvalidBook)
		return
	}
	if qty <= 0 {
		s.fail(w, sess, cart.ErrInvalidQuantity)
		return
	}
	book, err := s.books.Get(sess.Context(r.Context()), in.BookID)
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	if err := cart.CheckAddable(book, qty); err != nil {
		s.fail(w, sess, err)
		return
	}
	err = sess.Cart.AddItem(r.Context(), book, qty)
	s.mutated(w, sess, err, fmt.Sprintf("%s added to cart", book.Title))
}

func (s *Server) setQuantity(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.shopper(w, sess) {
		return
	}
	var in struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(r, &in); err != nil {
		s.fail(w, sess, err)
		return
	}
	line, ok := lineOf(sess, chi.URLParam(r, "id"))
	if !ok {
		s.fail(w, sess, errLineNotFound)
		return
	}
	qty := cart.ClampQuantity(line.Book, in.Quantity)
	if qty < in.Quantity {
		sess.Notices.Info(fmt.Sprintf("only %d of %s in stock", line.Book.Stock, line.Book.Title))
	}
	err := sess.Cart.SetQuantity(r.Context(), line.Book.ID, qty)
	s.mutated(w, sess, err, "")
}

func (s *Server) increment(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.shopper(w, sess) {
		return
	}
	line, ok := lineOf(sess, chi.URLParam(r, "id"))
	if !ok {
		s.fail(w, sess, errLineNotFound)
		return
	}
	if !cart.CanIncrement(line) {
		s.fail(w, sess, fmt.Errorf("%w: only %d of %s available", cart.ErrInsufficientStock, line.Book.Stock, line.Book.Title))
		return
	}
	err := sess.Cart.SetQuantity(r.Context(), line.Book.ID, line.Quantity+1)
	s.mutated(w, sess, err, "")
}

func (s *Server) decrement(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.shopper(w, sess) {
		return
	}
	line, ok := lineOf(sess, chi.URLParam(r, "id"))
	if !ok {
		s.fail(w, sess, errLineNotFound)
		return
	}
	err := sess.Cart.SetQuantity(r.Context(), line.Book.ID, line.Quantity-1)
	s.mutated(w, sess, err, "")
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.shopper(w, sess) {
		return
	}
	err := sess.Cart.RemoveItem(r.Context(), chi.URLParam(r, "id"))
	s.mutated(w, sess, err, "removed from cart")
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.shopper(w, sess) {
		return
	}
	err := sess.Cart.Clear(r.Context())
	s.mutated(w, sess, err, "cart cleared")
}
