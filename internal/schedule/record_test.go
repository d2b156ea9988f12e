package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoverningDate(t *testing.T) {
	sub := "2025-03-10"
	demand := "2025-03-05"
	listing := "2025-03-20"

	assert.Equal(t, sub, Record{SubStart: &sub, ListingDate: &listing}.GoverningDate())
	assert.Equal(t, demand, Record{DemandStart: &demand}.GoverningDate())
	assert.Equal(t, listing, Record{ListingDate: &listing}.GoverningDate())
	assert.Equal(t, "", Record{}.GoverningDate())
}

func TestRetentionDatePrefersWindowEnd(t *testing.T) {
	start := "2025-03-10"
	end := "2025-03-12"

	assert.Equal(t, end, Record{SubStart: &start, SubEnd: &end}.RetentionDate())
	assert.Equal(t, start, Record{SubStart: &start}.RetentionDate())
	assert.Equal(t, end, Record{DemandStart: &start, DemandEnd: &end}.RetentionDate())
	assert.Equal(t, start, Record{ListingDate: &start}.RetentionDate())
	assert.Equal(t, "", Record{}.RetentionDate())
}

func TestPtr(t *testing.T) {
	assert.Nil(t, Ptr(""))
	p := Ptr("2025-01-01")
	assert.NotNil(t, p)
	assert.Equal(t, "2025-01-01", *p)
}

func TestRunOrderMatchesCategories(t *testing.T) {
	cfgs := Categories()
	order := RunOrder()
	assert.Len(t, order, len(cfgs))
	for _, c := range order {
		cfg, ok := cfgs[c]
		assert.True(t, ok, "category %s missing config", c)
		assert.NotEmpty(t, cfg.BaseURL)
		assert.NotEmpty(t, cfg.TableCaption)
		assert.Positive(t, cfg.MaxPages)
	}
}
