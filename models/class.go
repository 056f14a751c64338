package models

import "github.com/shopspring/decimal"

// TicketClass is a priced ticket category with fixed inventory. The sold
// counter is derived upstream by the authority and never recomputed here.
type TicketClass struct {
	ID       string          `json:"id"`
	EventID  string          `json:"event_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Quantity int             `json:"quantity"`
	Sold     int             `json:"sold"`
}
