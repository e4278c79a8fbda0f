// Package tactics implements adaptive query-strategy selection: a fixed
// pool of named tactics with performance-weighted random draw, forced
// rotation when yield collapses, and search-query construction from
// free-text mission goals.
package tactics

// KeywordMode selects how mission keywords flow into a query.
type KeywordMode string

const (
	// KeywordsAll uses up to three keywords, priority terms first.
	KeywordsAll KeywordMode = "all"
	// KeywordsRotate samples two keywords at random per query.
	KeywordsRotate KeywordMode = "rotate"
	// KeywordsSingle uses the single strongest keyword.
	KeywordsSingle KeywordMode = "single"
)

// Tactic is a named query-construction preset. Weight is the mutable
// selection mass; everything else is fixed at catalog definition.
type Tactic struct {
	Name        string
	Description string
	StarsMin    int
	StarsMax    int    // 0 = unbounded
	DateField   string // "pushed" or "created"; "" disables the date filter
	DateDays    int    // relative window for DateField
	Sort        string // "updated" or "stars"
	PageFrom    int
	PageTo      int
	PerPage     int
	Keywords    KeywordMode
	Weight      float64
}

// Catalog returns the seed pool. Callers own the returned slice.
func Catalog() []Tactic {
	return []Tactic{
		{
			Name:        "trending",
			Description: "recently active repositories with momentum",
			StarsMin:    20,
			DateField:   "pushed",
			DateDays:    30,
			Sort:        "updated",
			PageFrom:    1,
			PageTo:      3,
			PerPage:     10,
			Keywords:    KeywordsAll,
			Weight:      1.5,
		},
		{
			Name:        "rising_stars",
			Description: "young projects gaining traction fast",
			StarsMin:    10,
			StarsMax:    100,
			DateField:   "pushed",
			DateDays:    14,
			Sort:        "updated",
			PageFrom:    1,
			PageTo:      5,
			PerPage:     10,
			Keywords:    KeywordsAll,
			Weight:      1.2,
		},
		{
			Name:        "established",
			Description: "mature, widely adopted projects",
			StarsMin:    500,
			Sort:        "stars",
			PageFrom:    1,
			PageTo:      10,
			PerPage:     10,
			Keywords:    KeywordsAll,
			Weight:      1.0,
		},
		{
			Name:        "deep_dive",
			Description: "page deep past the obvious results",
			StarsMin:    50,
			Sort:        "updated",
			PageFrom:    5,
			PageTo:      20,
			PerPage:     30,
			Keywords:    KeywordsAll,
			Weight:      0.8,
		},
		{
			Name:        "keyword_rotation",
			Description: "vary keyword pairs to escape a query rut",
			StarsMin:    30,
			Sort:        "updated",
			PageFrom:    1,
			PageTo:      5,
			PerPage:     10,
			Keywords:    KeywordsRotate,
			Weight:      1.0,
		},
		{
			Name:        "fresh_projects",
			Description: "brand new repositories, barely starred",
			StarsMin:    5,
			DateField:   "created",
			DateDays:    7,
			Sort:        "stars",
			PageFrom:    1,
			PageTo:      3,
			PerPage:     10,
			Keywords:    KeywordsAll,
			Weight:      0.7,
		},
	}
}
