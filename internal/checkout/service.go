package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
	"github.com/ahinestrog/fubooks-storefront/internal/catalog"
	"github.com/ahinestrog/fubooks-storefront/internal/events"
)

const DefaultPickupStation = "SUG Building - Pickup Station"

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNotAuthenticated = errors.New("sign in to place an order")
	ErrAdminAccount     = errors.New("admin accounts cannot place orders")
	ErrInvalidDelivery  = errors.New("invalid delivery details")
)

// StockError lists the cart lines that live stock can no longer cover.
type StockError struct {
	Shortages []cart.Shortage
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (%d left, %d requested)", s.Title, s.Available, s.Requested))
	}
	return "not enough stock: " + strings.Join(parts, ", ")
}

func (e *StockError) Is(target error) bool { return target == cart.ErrInsufficientStock }

// Orders is the part of the API client checkout needs.
type Orders interface {
	GetBook(ctx context.Context, id string) (catalog.Book, error)
	CreateOrder(ctx context.Context, in catalog.CreateOrderRequest) (catalog.Order, error)
	InitiateCashierPayment(ctx context.Context, orderID string) (catalog.PaymentInitiateResponse, error)
}

type Cart interface {
	Snapshot() cart.Snapshot
	ClearOrdered(ctx context.Context, ordered cart.Snapshot) error
}

type Options struct {
	DeliveryFee   decimal.Decimal
	PickupStation string
	Publisher     events.Publisher
	Log           zerolog.Logger
}

type Request struct {
	Method  catalog.DeliveryMethod `json:"deliveryMethod"`
	Address string                 `json:"address"`
	Phone   string                 `json:"phone"`
}

func (r Request) Validate() error {
	digits := 0
	for _, c := range r.Phone {
		if (c >= '0' && c <= '9') || c == '+' {
			digits++
		}
	}
	if digits < 10 {
		return fmt.Errorf("%w: phone number must have at least 10 digits", ErrInvalidDelivery)
	}
	switch r.Method {
	case catalog.MethodPickup:
	case catalog.MethodDelivery:
		if len(strings.TrimSpace(r.Address)) < 10 {
			return fmt.Errorf("%w: delivery address must be at least 10 characters", ErrInvalidDelivery)
		}
	default:
		return fmt.Errorf("%w: unknown delivery method %q", ErrInvalidDelivery, r.Method)
	}
	return nil
}

type Result struct {
	Order       catalog.Order   `json:"order"`
	ItemsTotal  decimal.Decimal `json:"itemsTotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	GrandTotal  decimal.Decimal `json:"grandTotal"`
}

type Service struct {
	api  Orders
	opts Options
}

func NewService(api Orders, opts Options) *Service {
	if opts.PickupStation == "" {
		opts.PickupStation = DefaultPickupStation
	}
	return &Service{api: api, opts: opts}
}

// Fee is the delivery charge for method.
func (s *Service) Fee(method catalog.DeliveryMethod) decimal.Decimal {
	if method == catalog.MethodDelivery {
		return s.opts.DeliveryFee
	}
	return decimal.Zero
}

// PlaceOrder turns the cart into an order. Once the order exists the ordered
// lines leave the cart; failing to remove them does not fail the checkout.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, user *catalog.User, c Cart, req Request) (Result, error) {
	switch {
	case user == nil:
		return Result{}, ErrNotAuthenticated
	case user.IsAdmin():
		return Result{}, ErrAdminAccount
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	snap := c.Snapshot()
	if snap.Empty() {
		return Result{}, ErrEmptyCart
	}

	live, err := s.liveStock(ctx, snap.Lines)
	if err != nil {
		return Result{}, err
	}
	if short := cart.Shortages(snap.Lines, live); len(short) > 0 {
		return Result{}, &StockError{Shortages: short}
	}

	address := strings.TrimSpace(req.Address)
	if req.Method == catalog.MethodPickup {
		address = s.opts.PickupStation
	}
	in := catalog.CreateOrderRequest{
		DeliveryMethod:  req.Method,
		DeliveryAddress: fmt.Sprintf("Phone: %s\n%s", strings.TrimSpace(req.Phone), address),
	}
	for _, l := range snap.Lines {
		in.Items = append(in.Items, catalog.OrderItemRequest{BookID: l.Book.ID, Quantity: l.Quantity})
	}
	order, err := s.api.CreateOrder(ctx, in)
	if err != nil {
		return Result{}, err
	}

	if err := c.ClearOrdered(ctx, snap); err != nil {
		s.opts.Log.Warn().Err(err).Str("order_id", order.ID).Msg("clear cart after order")
	}

	res := Result{
		Order:       order,
		ItemsTotal:  snap.Total(),
		DeliveryFee: s.Fee(req.Method),
	}
	res.GrandTotal = res.ItemsTotal.Add(res.DeliveryFee)

	if s.opts.Publisher != nil {
		err := s.opts.Publisher.Publish(ctx, events.RKOrderPlaced, events.OrderPlacedPayload{
			SessionID: sessionID,
			OrderID:   order.ID,
			ItemCount: snap.ItemCount(),
			Total:     res.GrandTotal,
		})
		if err != nil {
			s.opts.Log.Warn().Err(err).Str("order_id", order.ID).Msg("publish order.placed")
		}
	}
	s.opts.Log.Info().Str("order_id", order.ID).Str("user", user.ID).Str("total", res.GrandTotal.StringFixed(2)).Msg("order placed")
	return res, nil
}

// Pay starts the hosted cashier flow for an order and returns where to send
// the buyer.
func (s *Service) Pay(ctx context.Context, orderID string) (catalog.PaymentInitiateResponse, error) {
	if orderID == "" {
		return catalog.PaymentInitiateResponse{}, fmt.Errorf("%w: order id required", catalog.ErrInvalidRequest)
	}
	resp, err := s.api.InitiateCashierPayment(ctx, orderID)
	if err != nil {
		return resp, err
	}
	if resp.RedirectURL() == "" {
		return resp, errors.New("payment provider returned no redirect url")
	}
	return resp, nil
}

// liveStock fetches the current stock of every line's book. A book the API no
// longer knows has no stock.
func (s *Service) liveStock(ctx context.Context, lines []cart.Line) (map[string]int, error) {
	var mu sync.Mutex
	live := make(map[string]int, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, l := range lines {
		id := l.Book.ID
		g.Go(func() error {
			b, err := s.api.GetBook(gctx, id)
			stock := b.Stock
			if errors.Is(err, catalog.ErrNotFound) {
				stock, err = 0, nil
			}
			if err != nil {
				return fmt.Errorf("stock for %s: %w", id, err)
			}
			mu.Lock()
			live[id] = stock
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return live, nil
}
