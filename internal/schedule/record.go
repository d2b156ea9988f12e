// Package schedule defines the IPO schedule records collected from the
// bulletin site and the category metadata that drives the crawl.
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status classifies which phase of the offering a record describes.
type Status string

// Status values persisted in the store.
const (
	StatusSubscription Status = "SUBSCRIPTION"
	StatusBookbuilding Status = "BOOKBUILDING"
	StatusListing      Status = "LISTING"
)

// Record is one observed schedule entry. Date fields hold ISO-8601
// "YYYY-MM-DD" strings; nil means the source did not publish the date.
// RefundDate exists in the schema but no parser populates it.
type Record struct {
	ID          int64               `json:"id,omitempty"`
	StockName   string              `json:"stock_name"`
	Status      Status              `json:"status"`
	LeadManager *string             `json:"lead_manager,omitempty"`
	Brokers     *string             `json:"brokers,omitempty"`
	OfferPrice  decimal.NullDecimal `json:"offer_price,omitempty"`
	SubStart    *string             `json:"sub_start,omitempty"`
	SubEnd      *string             `json:"sub_end,omitempty"`
	ListingDate *string             `json:"listing_date,omitempty"`
	DemandStart *string             `json:"demand_start,omitempty"`
	DemandEnd   *string             `json:"demand_end,omitempty"`
	RefundDate  *string             `json:"refund_date,omitempty"`
	Source      string              `json:"source"`
	CreatedAt   time.Time           `json:"created_at,omitempty"`
}

// GoverningDate returns the date used for ordering and retention:
// subscription start, else demand start, else listing date. Empty when
// the record carries none of the three.
func (r Record) GoverningDate() string {
	switch {
	case r.SubStart != nil:
		return *r.SubStart
	case r.DemandStart != nil:
		return *r.DemandStart
	case r.ListingDate != nil:
		return *r.ListingDate
	}
	return ""
}

// RetentionDate returns the date the crawl's future-only filter compares
// against today: the end of the subscription or bookbuilding window when
// known, otherwise its start, otherwise the listing date. A record whose
// retention date is in the past describes a schedule that has already run.
func (r Record) RetentionDate() string {
	switch {
	case r.SubEnd != nil:
		return *r.SubEnd
	case r.SubStart != nil:
		return *r.SubStart
	case r.DemandEnd != nil:
		return *r.DemandEnd
	case r.DemandStart != nil:
		return *r.DemandStart
	case r.ListingDate != nil:
		return *r.ListingDate
	}
	return ""
}

// Ptr returns a pointer to s, or nil when s is empty. Parsers use it to
// map the normalizer's empty-string "absent" convention onto the
// record's nullable fields.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
