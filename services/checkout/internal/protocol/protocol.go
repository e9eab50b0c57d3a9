// Package protocol holds the Agentic Commerce Protocol wire format.
package protocol

import (
	"encoding/json"
)

const APIVersion = "2025-09-29"

type Status string

const (
	StatusNotReadyForPayment Status = "not_ready_for_payment"
	StatusReadyForPayment    Status = "ready_for_payment"
	StatusInProgress         Status = "in_progress"
	StatusCompleted          Status = "completed"
	StatusCanceled           Status = "canceled"
)

// Terminal statuses are pinned on the session and never re-derived.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// OptString decodes a JSON string and treats any other JSON value,
// null included, as absent.
type OptString struct {
	Value string
	Set   bool
}

func (s *OptString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil || string(b) == "null" {
		*s = OptString{}
		return nil
	}
	*s = OptString{Value: v, Set: true}
	return nil
}

func (s OptString) MarshalJSON() ([]byte, error) {
	if !s.Set {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

func Opt(v string) OptString { return OptString{Value: v, Set: true} }

type AddressInput struct {
	Name       OptString `json:"name"`
	LineOne    OptString `json:"line_one"`
	LineTwo    OptString `json:"line_two"`
	City       OptString `json:"city"`
	State      OptString `json:"state"`
	Country    OptString `json:"country"`
	PostalCode OptString `json:"postal_code"`
}

type BuyerInput struct {
	Email          OptString     `json:"email"`
	FirstName      OptString     `json:"first_name"`
	LastName       OptString     `json:"last_name"`
	PhoneNumber    OptString     `json:"phone_number"`
	BillingAddress *AddressInput `json:"billing_address,omitempty"`
}

type ItemInput struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type CreateRequest struct {
	Items              []ItemInput   `json:"items"`
	Buyer              *BuyerInput   `json:"buyer,omitempty"`
	FulfillmentAddress *AddressInput `json:"fulfillment_address,omitempty"`
}

type UpdateRequest struct {
	Items               []ItemInput   `json:"items,omitempty"`
	Buyer               *BuyerInput   `json:"buyer,omitempty"`
	FulfillmentAddress  *AddressInput `json:"fulfillment_address,omitempty"`
	FulfillmentOptionID OptString     `json:"fulfillment_option_id"`
}

type PaymentData struct {
	Token          OptString     `json:"token"`
	Provider       OptString     `json:"provider"`
	BillingAddress *AddressInput `json:"billing_address,omitempty"`
}

type CompleteRequest struct {
	PaymentData json.RawMessage `json:"payment_data"`
	Buyer       *BuyerInput     `json:"buyer,omitempty"`
}

type Address struct {
	Name       string `json:"name"`
	LineOne    string `json:"line_one"`
	LineTwo    string `json:"line_two,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type Buyer struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type Item struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Amounts are minor units.
type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	BaseAmount int64  `json:"base_amount"`
	Discount   int64  `json:"discount"`
	Subtotal   int64  `json:"subtotal"`
	Tax        int64  `json:"tax"`
	Total      int64  `json:"total"`
}

type TotalType string

const (
	TotalItemsBaseAmount TotalType = "items_base_amount"
	TotalItemsDiscount   TotalType = "items_discount"
	TotalSubtotal        TotalType = "subtotal"
	TotalDiscount        TotalType = "discount"
	TotalFulfillment     TotalType = "fulfillment"
	TotalTax             TotalType = "tax"
	TotalTotal           TotalType = "total"
)

type Total struct {
	Type        TotalType `json:"type"`
	DisplayText string    `json:"display_text"`
	Amount      int64     `json:"amount"`
}

type FulfillmentOption struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type PaymentProvider struct {
	Provider                string   `json:"provider"`
	SupportedPaymentMethods []string `json:"supported_payment_methods"`
}

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Order struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url"`
}

type CheckoutSession struct {
	ID                  string              `json:"id"`
	Status              Status              `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []LineItem          `json:"line_items"`
	Totals              []Total             `json:"totals"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID string              `json:"fulfillment_option_id,omitempty"`
	FulfillmentAddress  *Address            `json:"fulfillment_address,omitempty"`
	Buyer               *Buyer              `json:"buyer,omitempty"`
	PaymentProvider     PaymentProvider     `json:"payment_provider"`
	Messages            []Message           `json:"messages"`
	Links               []Link              `json:"links"`
	Order               *Order              `json:"order,omitempty"`
}
