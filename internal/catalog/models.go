package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
)

// Book records travel unchanged into cart lines.
type Book = cart.Book

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	RegNumber     string `json:"regNumber"`
	Role          Role   `json:"role"`
	Accommodation string `json:"accommodation,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type LoginRequest struct {
	EmailOrRegNumber string `json:"emailOrRegNumber"`
	Password         string `json:"password"`
}

func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.EmailOrRegNumber) == "" || r.Password == "" {
		return invalid("email or reg number and password are required")
	}
	return nil
}

type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	RegNumber     string `json:"regNumber"`
	Password      string `json:"password"`
	Accommodation string `json:"accommodation"`
}

func (r RegisterRequest) Validate() error {
	if r.Name == "" || r.Email == "" || r.RegNumber == "" || r.Password == "" {
		return invalid("name, email, reg number and password are required")
	}
	return nil
}

type DeliveryMethod string

const (
	MethodPickup   DeliveryMethod = "pickup"
	MethodDelivery DeliveryMethod = "delivery"
)

func (m DeliveryMethod) Valid() bool { return m == MethodPickup || m == MethodDelivery }

type OrderItemRequest struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items"`
	DeliveryAddress string             `json:"deliveryAddress"`
	DeliveryMethod  DeliveryMethod     `json:"deliveryMethod"`
}

func (r CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return invalid("order needs at least one item")
	}
	seen := make(map[string]bool, len(r.Items))
	for _, it := range r.Items {
		if it.BookID == "" {
			return invalid("item without book id")
		}
		if it.Quantity <= 0 {
			return invalid(fmt.Sprintf("quantity for %s must be positive", it.BookID))
		}
		if seen[it.BookID] {
			return invalid(fmt.Sprintf("book %s listed twice", it.BookID))
		}
		seen[it.BookID] = true
	}
	if !r.DeliveryMethod.Valid() {
		return invalid(fmt.Sprintf("unknown delivery method %q", r.DeliveryMethod))
	}
	if strings.TrimSpace(r.DeliveryAddress) == "" {
		return invalid("delivery address required")
	}
	return nil
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderPurchased  OrderStatus = "purchased"
	OrderDelivering OrderStatus = "delivering"
	OrderDelivered  OrderStatus = "delivered"
)

type OrderItem struct {
	ID       string          `json:"id"`
	BookID   string          `json:"bookId"`
	Book     Book            `json:"book"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type Order struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"studentId"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus"`
	OrderStatus      OrderStatus     `json:"orderStatus"`
	DeliveryAddress  string          `json:"deliveryAddress"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	OpayOrderNo      string          `json:"opayOrderNo,omitempty"`
	OrderItems       []OrderItem     `json:"orderItems"`
	CreatedAt        string          `json:"createdAt"`
}

type PayMethod string

const (
	PayAccount     PayMethod = "AccountPayment"
	PayBankCard    PayMethod = "BankCard"
	PayBankAccount PayMethod = "BankAccount"
)

type PaymentInitiateRequest struct {
	OrderID     string    `json:"orderId"`
	PayMethod   PayMethod `json:"payMethod"`
	BankAccount string    `json:"bankAccount,omitempty"`
	BankCode    string    `json:"bankCode,omitempty"`
}

func (r PaymentInitiateRequest) Validate() error {
	if r.OrderID == "" {
		return invalid("order id required")
	}
	switch r.PayMethod {
	case PayAccount, PayBankCard:
	case PayBankAccount:
		if r.BankAccount == "" || r.BankCode == "" {
			return invalid("bank account and bank code required")
		}
	default:
		return invalid(fmt.Sprintf("unknown pay method %q", r.PayMethod))
	}
	return nil
}

type PaymentInitiateResponse struct {
	Reference  string `json:"reference"`
	PaymentURL string `json:"paymentUrl,omitempty"`
	CashierURL string `json:"cashierUrl,omitempty"`
}

// RedirectURL prefers the cashier page over the direct payment URL.
func (p PaymentInitiateResponse) RedirectURL() string {
	if p.CashierURL != "" {
		return p.CashierURL
	}
	return p.PaymentURL
}

type PaymentStatusResponse struct {
	Reference string        `json:"reference"`
	Status    PaymentStatus `json:"status"`
	OrderID   string        `json:"orderId"`
}

var ErrInvalidRequest = errors.New("invalid request")

func invalid(msg string) error { return fmt.Errorf("%w: %s", ErrInvalidRequest, msg) }

// normalizeBook applies the defaults the rest of the app relies on.
func normalizeBook(b *Book) {
	if b.Stock < 0 {
		b.Stock = 0
	}
	if b.Price.IsNegative() {
		b.Price = decimal.Zero
	}
	b.Title = strings.TrimSpace(b.Title)
}
