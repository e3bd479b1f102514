// Package itinerary holds the day-by-day output of plan generation.
package itinerary

import (
	"time"

	"github.com/evcraddock/trip-planner/internal/geo"
)

// Activity is one scheduled unit within a day.
type Activity struct {
	Time           string `json:"time"`
	Duration       string `json:"duration"`
	Activity       string `json:"activity"`
	Location       string `json:"location"`
	Cost           string `json:"cost"`
	Transportation string `json:"transportation"`
	Notes          string `json:"notes,omitempty"`

	// LocationData is nil until enrichment resolves Location.
	LocationData *geo.LocationRecord `json:"location_data"`
}

// DayPlan is one calendar date of activities in chronological order.
type DayPlan struct {
	Date       string     `json:"date"`
	Activities []Activity `json:"activities"`
	DailyCost  string     `json:"daily_cost,omitempty"`
}

// Itinerary is the generated plan content for exactly one plan.
type Itinerary struct {
	PlanID       string    `json:"plan_id"`
	OwnerID      string    `json:"owner_id"`
	DailyPlans   []DayPlan `json:"daily_plans"`
	TotalCost    string    `json:"total_cost"`
	GeneralNotes string    `json:"general_notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LocationTexts returns the distinct trimmed non-empty location texts in
// day and activity order. Comparison is case-sensitive.
func (it *Itinerary) LocationTexts() []string {
	seen := make(map[string]bool)
	var texts []string
	for _, day := range it.DailyPlans {
		for _, a := range day.Activities {
			text := geo.Normalize(a.Location)
			if text == "" || seen[text] {
				continue
			}
			seen[text] = true
			texts = append(texts, text)
		}
	}
	return texts
}

// Unresolved counts activities with a location but no location data.
func (it *Itinerary) Unresolved() int {
	n := 0
	for _, day := range it.DailyPlans {
		for _, a := range day.Activities {
			if geo.Normalize(a.Location) != "" && a.LocationData == nil {
				n++
			}
		}
	}
	return n
}

// Clone returns a deep copy.
func (it *Itinerary) Clone() *Itinerary {
	out := *it
	out.DailyPlans = make([]DayPlan, len(it.DailyPlans))
	for i, day := range it.DailyPlans {
		out.DailyPlans[i] = day.Clone()
	}
	return &out
}

// Clone returns a deep copy.
func (d DayPlan) Clone() DayPlan {
	out := d
	out.Activities = CloneActivities(d.Activities)
	return out
}

// CloneActivities deep-copies a slice of activities, including location data.
func CloneActivities(in []Activity) []Activity {
	if in == nil {
		return nil
	}
	out := make([]Activity, len(in))
	for i, a := range in {
		out[i] = a
		if a.LocationData != nil {
			rec := *a.LocationData
			out[i].LocationData = &rec
		}
	}
	return out
}
