package domain

import "time"

const (
	CartStatusActive    = "active"
	CartStatusConverted = "converted"
	CartStatusAbandoned = "abandoned"
)

type Cart struct {
	ID        string     `json:"id"`
	OwnerRef  *string    `json:"ownerRef,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Items     []CartItem `json:"items"`
}

type CartItem struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cartId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsActive reports whether items may still be mutated.
func (c Cart) IsActive() bool {
	return c.Status == CartStatusActive
}
