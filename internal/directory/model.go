// Package directory provides read access to the provider directory and
// fuzzy resolution of free-text names against it. The directory itself
// is owned by the wider platform; this package only reads it.
package directory

import "time"

// Provider is a single consultant/firm entry in the directory.
type Provider struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Location    string         `json:"location"`
	Mode        string         `json:"mode"` // "online", "offline", or "both"
	PriceCents  int64          `json:"price_cents"`
	WorkingDays []time.Weekday `json:"working_days"`
	WorkStart   int            `json:"work_start"` // hour of day, inclusive
	WorkEnd     int            `json:"work_end"`   // hour of day, exclusive
}

// WorksOn reports whether the provider takes appointments on the given weekday.
func (p Provider) WorksOn(day time.Weekday) bool {
	for _, d := range p.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// Filter narrows a directory listing. Zero values mean "no constraint".
type Filter struct {
	Category      string
	Location      string
	Mode          string
	MaxPriceCents int64
	Limit         int
}
