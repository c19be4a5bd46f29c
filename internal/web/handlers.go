package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ahinestrog/fubooks-storefront/internal/catalog"
	"github.com/ahinestrog/fubooks-storefront/internal/checkout"
	"github.com/ahinestrog/fubooks-storefront/internal/notify"
	"github.com/ahinestrog/fubooks-storefront/internal/session"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var in catalog.LoginRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, sess, err)
		return
	}
	auth, err := s.api.Login(r.Context(), in)
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	sess.SignIn(auth)
	sess.Notices.Success(fmt.Sprintf("welcome back, %s", auth.User.Name))
	s.log.Info().Str("session", sess.ID).Str("user", auth.User.ID).Msg("signed in")
	writeJSON(w, http.StatusOK, auth.User)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var in catalog.RegisterRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, sess, err)
		return
	}
	auth, err := s.api.Register(r.Context(), in)
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	sess.SignIn(auth)
	sess.Notices.Success("account created")
	writeJSON(w, http.StatusCreated, auth.User)
}

// logout ends the session: token and cart both go.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := s.sessions.End(r.Context(), sess.ID); err != nil {
		s.log.Warn().Err(err).Str("session", sess.ID).Msg("discard cart on logout")
	}
	http.SetCookie(w, s.cookie("", -1))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	books, err := s.books.List(sess.Context(r.Context()))
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	if books == nil {
		books = []catalog.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	book, err := s.books.Get(sess.Context(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) signedIn(w http.ResponseWriter, sess *session.Session) bool {
	if !sess.Authenticated() {
		s.fail(w, sess, errSignIn)
		return false
	}
	return true
}

type placedView struct {
	checkout.Result
	GrandTotalText string `json:"grandTotalText"`
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req checkout.Request
	if err := decode(r, &req); err != nil {
		s.fail(w, sess, err)
		return
	}
	res, err := s.checkout.PlaceOrder(sess.Context(r.Context()), sess.ID, sess.User(), sess.Cart, req)
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	// stock moved; drop cached copies so book pages show the new numbers
	for _, it := range res.Order.OrderItems {
		s.books.Forget(it.BookID)
	}
	sess.Notices.Success("order placed")
	writeJSON(w, http.StatusCreated, placedView{Result: res, GrandTotalText: naira(res.GrandTotal)})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.signedIn(w, sess) {
		return
	}
	orders, err := s.api.ListOrders(sess.Context(r.Context()))
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	if orders == nil {
		orders = []catalog.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.signedIn(w, sess) {
		return
	}
	order, err := s.api.GetOrder(sess.Context(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) pay(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.signedIn(w, sess) {
		return
	}
	resp, err := s.checkout.Pay(sess.Context(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reference":   resp.Reference,
		"redirectUrl": resp.RedirectURL(),
	})
}

func (s *Server) paymentStatus(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !s.signedIn(w, sess) {
		return
	}
	st, err := s.api.PaymentStatus(sess.Context(r.Context()), chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	active := sessionFrom(r).Notices.Active()
	if active == nil {
		active = []notify.Notice{}
	}
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) dismissNotification(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Notices.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
