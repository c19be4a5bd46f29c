// Superficie HTTP del storefront: catálogo, carrito, checkout y pedidos
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/fubooks-storefront/internal/catalog"
	"github.com/ahinestrog/fubooks-storefront/internal/checkout"
	"github.com/ahinestrog/fubooks-storefront/internal/session"
)

const (
	cookieName       = "sid"
	cookieMaxAge     = 30 * 24 * 60 * 60
	defaultKeepAlive = 15 * time.Second
	maxBody          = 1 << 20
)

// Books is where book pages and add-to-cart read books from.
type Books interface {
	List(ctx context.Context) ([]catalog.Book, error)
	Get(ctx context.Context, id string) (catalog.Book, error)
	Forget(id string)
}

// API is the part of the remote API the handlers call directly.
type API interface {
	Login(ctx context.Context, in catalog.LoginRequest) (catalog.AuthResponse, error)
	Register(ctx context.Context, in catalog.RegisterRequest) (catalog.AuthResponse, error)
	ListOrders(ctx context.Context) ([]catalog.Order, error)
	GetOrder(ctx context.Context, id string) (catalog.Order, error)
	PaymentStatus(ctx context.Context, reference string) (catalog.PaymentStatusResponse, error)
}

type Checkout interface {
	PlaceOrder(ctx context.Context, sessionID string, user *catalog.User, c checkout.Cart, req checkout.Request) (checkout.Result, error)
	Pay(ctx context.Context, orderID string) (catalog.PaymentInitiateResponse, error)
}

type Deps struct {
	Sessions *session.Manager
	Books    Books
	API      API
	Checkout Checkout
	Log      zerolog.Logger

	CORSOrigins  []string
	SecureCookie bool
	KeepAlive    time.Duration
	// TrustProxy reads the client address from forwarding headers. Leave it
	// off unless a proxy in front rewrites them, otherwise any caller can pick
	// the address the login limiter keys on.
	TrustProxy bool
}

type Server struct {
	sessions *session.Manager
	books    Books
	api      API
	checkout Checkout
	log      zerolog.Logger

	corsOrigins  []string
	secureCookie bool
	keepAlive    time.Duration
	trustProxy   bool
	authLimit    *ipLimiter

	done      chan struct{}
	closeOnce sync.Once
}

func New(d Deps) *Server {
	ka := d.KeepAlive
	if ka <= 0 {
		ka = defaultKeepAlive
	}
	return &Server{
		sessions:     d.Sessions,
		books:        d.Books,
		api:          d.API,
		checkout:     d.Checkout,
		log:          d.Log.With().Str("component", "http").Logger(),
		corsOrigins:  d.CORSOrigins,
		secureCookie: d.SecureCookie,
		keepAlive:    ka,
		trustProxy:   d.TrustProxy,
		authLimit:    newIPLimiter(1, 5),
		done:         make(chan struct{}),
	}
}

// Close ends open event streams so a graceful shutdown does not wait on them.
func (s *Server) Close() { s.closeOnce.Do(func() { close(s.done) }) }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(limitBody)
		r.Use(s.withSession)

		r.Route("/auth", func(r chi.Router) {
			r.With(s.authLimit.middleware).Post("/login", s.login)
			r.With(s.authLimit.middleware).Post("/register", s.register)
			r.Post("/logout", s.logout)
		})

		r.Get("/books", s.listBooks)
		r.Get("/books/{id}", s.getBook)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Delete("/", s.clearCart)
			r.Get("/events", s.cartEvents)
			r.Post("/items", s.addItem)
			r.Put("/items/{id}", s.setQuantity)
			r.Delete("/items/{id}", s.removeItem)
			r.Post("/items/{id}/increment", s.increment)
			r.Post("/items/{id}/decrement", s.decrement)
		})

		r.Post("/checkout", s.placeOrder)
		r.Get("/orders", s.listOrders)
		r.Get("/orders/{id}", s.getOrder)
		r.Post("/orders/{id}/pay", s.pay)
		r.Get("/payments/{ref}", s.paymentStatus)

		r.Get("/notifications", s.notifications)
		r.Delete("/notifications/{id}", s.dismissNotification)
	})

	return cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(r)
}

type sessionKey struct{}

// withSession attaches the caller's session, minting one (and its cookie)
// when the request carries none or an unknown-format id.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(cookieName); err == nil {
			id = c.Value
		}
		sess := s.sessions.Open(r.Context(), id)
		if sess.ID != id {
			http.SetCookie(w, s.cookie(sess.ID, cookieMaxAge))
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func (s *Server) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(sessionKey{}).(*session.Session)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("req_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		next.ServeHTTP(w, r)
	})
}
