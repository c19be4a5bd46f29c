// Cliente REST de la API de FUBOOKS
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx answer from the API. Message comes from the body's
// "message" field when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

type tokenKey struct{}

// WithToken attaches the bearer token used by calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "api").Logger(),
	}
}

func (c *Client) Register(ctx context.Context, in RegisterRequest) (AuthResponse, error) {
	var out AuthResponse
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/auth/register", in, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, in LoginRequest) (AuthResponse, error) {
	var out AuthResponse
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", in, &out)
	return out, err
}

func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var out []Book
	if err := c.do(ctx, http.MethodGet, "/books", nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		normalizeBook(&out[i])
	}
	return out, nil
}

func (c *Client) GetBook(ctx context.Context, id string) (Book, error) {
	var out Book
	if err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(id), nil, &out); err != nil {
		return out, err
	}
	normalizeBook(&out)
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (Order, error) {
	var out Order
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/orders", in, &out)
	return out, err
}

func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	err := c.do(ctx, http.MethodGet, "/orders", nil, &out)
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var out Order
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) InitiatePayment(ctx context.Context, in PaymentInitiateRequest) (PaymentInitiateResponse, error) {
	var out PaymentInitiateResponse
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/payments/initiate", in, &out)
	return out, err
}

func (c *Client) InitiateCashierPayment(ctx context.Context, orderID string) (PaymentInitiateResponse, error) {
	var out PaymentInitiateResponse
	if orderID == "" {
		return out, invalid("order id required")
	}
	body := struct {
		OrderID string `json:"orderId"`
	}{orderID}
	err := c.do(ctx, http.MethodPost, "/payments/initiate-cashier", body, &out)
	return out, err
}

func (c *Client) PaymentStatus(ctx context.Context, reference string) (PaymentStatusResponse, error) {
	var out PaymentStatusResponse
	err := c.do(ctx, http.MethodGet, "/payments/status/"+url.PathEscape(reference), nil, &out)
	return out, err
}

// do sends in as JSON and unwraps the {"data": ...} envelope into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := tokenFrom(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api call")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
