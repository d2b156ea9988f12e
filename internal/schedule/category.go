package schedule

// Category names one of the bulletin site's paginated listing boards.
type Category string

// Crawl categories in their fixed run order.
const (
	CategorySubscription Category = "subscription"
	CategoryBookbuilding Category = "bookbuilding"
	CategoryListing      Category = "listing"
)

// CategoryConfig describes how one category is crawled: where its pages
// live, how its table is labelled in the page markup, and how deep the
// pagination is followed.
type CategoryConfig struct {
	// BaseURL is the listing URL prefix; the page number is appended.
	BaseURL string
	// TableCaption is the summary attribute identifying the data table.
	TableCaption string
	// MaxPages bounds pagination. Only near-term schedules matter, so
	// the tail of the archive is deliberately never visited.
	MaxPages int
	// Source tags records with their origin category.
	Source string
	// Status assigned to every record parsed from this category.
	Status Status
}

// Categories returns the default per-category crawl configuration for
// the 38 Communications fund boards.
func Categories() map[Category]CategoryConfig {
	return map[Category]CategoryConfig{
		CategorySubscription: {
			BaseURL:      "http://www.38.co.kr/html/fund/index.htm?o=k&page=",
			TableCaption: "공모주 청약일정",
			MaxPages:     5,
			Source:       "subscription-schedule",
			Status:       StatusSubscription,
		},
		CategoryBookbuilding: {
			BaseURL:      "http://www.38.co.kr/html/fund/index.htm?o=r&page=",
			TableCaption: "수요예측일정",
			MaxPages:     5,
			Source:       "bookbuilding-schedule",
			Status:       StatusBookbuilding,
		},
		CategoryListing: {
			BaseURL:      "http://www.38.co.kr/html/fund/index.htm?o=nw&page=",
			TableCaption: "신규상장종목",
			MaxPages:     3,
			Source:       "new-listings",
			Status:       StatusListing,
		},
	}
}

// RunOrder is the fixed order categories are crawled in.
func RunOrder() []Category {
	return []Category{CategorySubscription, CategoryBookbuilding, CategoryListing}
}
