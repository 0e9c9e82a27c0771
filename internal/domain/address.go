package domain

// Address is a postal address as sent on the wire.
type Address struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,max=56"`
}

// Contact identifies the buyer of an order.
type Contact struct {
	Email string `json:"customerEmail" validate:"required,email,max=254"`
	Name  string `json:"customerName" validate:"required,max=200"`
	Phone string `json:"customerPhone,omitempty" validate:"max=40"`
}
