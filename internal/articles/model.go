// Package articles implements the article catalogue: listing scoped to the
// viewer's grants, authoring, editing and the printable report.
package articles

import "time"

// Article is one catalogued publication. CreatedBy and CreatedEmail identify
// the authoring profile and never change after creation.
type Article struct {
	ID           int64
	Title        string
	Authors      string
	Venue        string
	Category     string
	CreatedBy    string
	CreatedEmail string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Categories is the closed set of article classifications, in menu order.
var Categories = []string{
	"Journal",
	"Conference",
	"Workshop",
	"Preprint",
	"Other",
}

// ValidCategory reports membership in Categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
