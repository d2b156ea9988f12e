package crawler

import (
	"strings"

	"github.com/shopspring/decimal"

	"ipowatch/internal/normalize"
	"ipowatch/internal/schedule"
)

// rowParser turns one table row's cell texts into a Record. It reports
// false for rows that carry no schedule: separators, ads, rows whose
// name or governing date cannot be read. The caller fills Status and
// Source from the category config.
type rowParser func(cells []string) (schedule.Record, bool)

func parserFor(category schedule.Category) rowParser {
	switch category {
	case schedule.CategoryBookbuilding:
		return parseBookbuildingRow
	case schedule.CategoryListing:
		return parseListingRow
	default:
		return parseSubscriptionRow
	}
}

// Subscription rows: name, subscription window, final offer price,
// hoped band, competition rate, brokers. The board does not carry a
// separate lead manager column; the broker cell fills both fields.
func parseSubscriptionRow(cells []string) (schedule.Record, bool) {
	if len(cells) < 6 {
		return schedule.Record{}, false
	}
	name := strings.TrimSpace(cells[0])
	if name == "" {
		return schedule.Record{}, false
	}
	start, end := normalize.Range(cells[1])
	if start == "" {
		return schedule.Record{}, false
	}
	brokers := strings.TrimSpace(cells[5])
	rec := schedule.Record{
		StockName:   name,
		SubStart:    schedule.Ptr(start),
		SubEnd:      schedule.Ptr(end),
		LeadManager: schedule.Ptr(brokers),
		Brokers:     schedule.Ptr(brokers),
	}
	rec.OfferPrice = wonPrice(cells[2])
	return rec, true
}

// Bookbuilding rows: name, bookbuilding window, band, offer price, and
// brokers when the row is wide enough to carry them.
func parseBookbuildingRow(cells []string) (schedule.Record, bool) {
	if len(cells) < 5 {
		return schedule.Record{}, false
	}
	name := strings.TrimSpace(cells[0])
	if name == "" {
		return schedule.Record{}, false
	}
	start, end := normalize.Range(cells[1])
	if start == "" {
		return schedule.Record{}, false
	}
	rec := schedule.Record{
		StockName:   name,
		DemandStart: schedule.Ptr(start),
		DemandEnd:   schedule.Ptr(end),
	}
	rec.OfferPrice = wonPrice(cells[3])
	if len(cells) > 5 {
		brokers := strings.TrimSpace(cells[5])
		rec.LeadManager = schedule.Ptr(brokers)
		rec.Brokers = schedule.Ptr(brokers)
	}
	return rec, true
}

// Listing rows: name, listing date, then optional columns ending in the
// offer price at index 4.
func parseListingRow(cells []string) (schedule.Record, bool) {
	if len(cells) < 2 {
		return schedule.Record{}, false
	}
	name := strings.TrimSpace(cells[0])
	if name == "" {
		return schedule.Record{}, false
	}
	date, ok := normalize.Date(cells[1])
	if !ok {
		return schedule.Record{}, false
	}
	rec := schedule.Record{
		StockName:   name,
		ListingDate: schedule.Ptr(date),
	}
	if len(cells) >= 5 {
		rec.OfferPrice = wonPrice(cells[4])
	}
	return rec, true
}

func wonPrice(text string) decimal.NullDecimal {
	price, ok := normalize.Won(text)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: price, Valid: true}
}
