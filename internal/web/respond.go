package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
	"github.com/ahinestrog/fubooks-storefront/internal/catalog"
	"github.com/ahinestrog/fubooks-storefront/internal/checkout"
	"github.com/ahinestrog/fubooks-storefront/internal/session"
)

var (
	errSignIn       = errors.New("please sign in to continue")
	errAdminCart    = errors.New("admin accounts cannot use the cart")
	errLineNotFound = errors.New("book is not in your cart")
	errBadBody      = errors.New("malformed request body")
)

type errorBody struct {
	Error     string          `json:"error"`
	Shortages []cart.Shortage `json:"shortages,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func statusOf(err error) int {
	var apiErr *catalog.APIError
	switch {
	case errors.Is(err, errSignIn),
		errors.Is(err, checkout.ErrNotAuthenticated),
		errors.Is(err, catalog.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errAdminCart), errors.Is(err, checkout.ErrAdminAccount):
		return http.StatusForbidden
	case errors.Is(err, errLineNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, errBadBody),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidBook),
		errors.Is(err, catalog.ErrInvalidRequest),
		errors.Is(err, checkout.ErrInvalidDelivery),
		errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail reports err to the caller and as a toast on the session. A 401 from
// the API means the token is dead, so the session is signed out.
func (s *Server) fail(w http.ResponseWriter, sess *session.Session, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		msg = "something went wrong, please try again"
	}
	if sess != nil {
		if errors.Is(err, catalog.ErrUnauthorized) && sess.Authenticated() {
			sess.SignOut()
			msg = "your session has expired, please sign in again"
		}
		sess.Notices.Error(msg)
	}
	body := errorBody{Error: msg}
	var se *checkout.StockError
	if errors.As(err, &se) {
		body.Shortages = se.Shortages
	}
	writeJSON(w, status, body)
}

func naira(d decimal.Decimal) string {
	return "₦" + humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

type lineView struct {
	Book         cart.Book       `json:"book"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	SubtotalText string          `json:"subtotalText"`
	CanIncrement bool            `json:"canIncrement"`
}

type cartView struct {
	Items     []lineView      `json:"items"`
	ItemCount int             `json:"itemCount"`
	Total     decimal.Decimal `json:"total"`
	TotalText string          `json:"totalText"`
	Version   int64           `json:"version"`
}

func viewOf(snap cart.Snapshot) cartView {
	v := cartView{
		Items:     make([]lineView, 0, len(snap.Lines)),
		ItemCount: snap.ItemCount(),
		Total:     snap.Total(),
		Version:   snap.Version,
	}
	v.TotalText = naira(v.Total)
	for _, l := range snap.Lines {
		sub := l.Subtotal()
		v.Items = append(v.Items, lineView{
			Book:         l.Book,
			Quantity:     l.Quantity,
			Subtotal:     sub,
			SubtotalText: naira(sub),
			CanIncrement: cart.CanIncrement(l),
		})
	}
	return v
}

type mutationResponse struct {
	Cart  cartView `json:"cart"`
	Saved bool     `json:"saved"`
}
