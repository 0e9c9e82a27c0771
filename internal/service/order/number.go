package order

import (
	"crypto/rand"
	"fmt"
	"time"
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewOrderNumber returns SV-YYYYMMDD-XXXXXXXX. The suffix carries 40 random
// bits; uniqueness is enforced by the orders_order_number_key index.
func NewOrderNumber(at time.Time) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("order number: %w", err)
	}
	suffix := make([]byte, len(b))
	for i, v := range b {
		suffix[i] = crockford[v&0x1f]
	}
	return fmt.Sprintf("SV-%s-%s", at.UTC().Format("20060102"), suffix), nil
}
