package domain

import "time"

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Order is created once at checkout. Monetary fields never change afterwards;
// only Status, PaymentStatus and their timestamps do.
type Order struct {
	ID               string      `json:"id"`
	OrderNumber      string      `json:"orderNumber"`
	CartID           *string     `json:"cartId,omitempty"`
	CustomerEmail    string      `json:"customerEmail"`
	CustomerName     string      `json:"customerName"`
	CustomerPhone    string      `json:"customerPhone,omitempty"`
	ShippingAddress  Address     `json:"shippingAddress"`
	BillingAddress   Address     `json:"billingAddress"`
	Subtotal         Money       `json:"subtotal"`
	Tax              Money       `json:"tax"`
	ShippingCost     Money       `json:"shippingCost"`
	TotalAmount      Money       `json:"totalAmount"`
	Status           string      `json:"status"`
	PaymentStatus    string      `json:"paymentStatus"`
	PaymentReference string      `json:"paymentReference,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	ShippedAt        *time.Time  `json:"shippedAt,omitempty"`
	DeliveredAt      *time.Time  `json:"deliveredAt,omitempty"`
	Items            []OrderItem `json:"items"`
}

// OrderItem is the frozen line snapshot taken at purchase time.
type OrderItem struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName"`
	ProductSlug     string    `json:"productSlug"`
	Quantity        int       `json:"quantity"`
	PriceAtPurchase Money     `json:"priceAtPurchase"`
	Subtotal        Money     `json:"subtotal"`
	CreatedAt       time.Time `json:"createdAt"`
}

func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}
