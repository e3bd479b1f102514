// Package synth turns a trip request into an itinerary by calling a language
// model, and reorganizes single days after edits.
package synth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/plan"
)

var (
	// ErrInvalidOutput means the model answered with something that is not a
	// usable itinerary.
	ErrInvalidOutput = errors.New("invalid synthesizer output")
	// ErrUnavailable means the model could not be reached.
	ErrUnavailable = errors.New("synthesizer unavailable")
)

// Request is the structured input to Synthesize.
type Request struct {
	Destination    string
	Dates          string
	TravelGroup    string
	Interests      string
	Budget         string
	Transportation string
	Flight         *plan.Booking
	Accommodation  *plan.Booking
	// Instructions are free-text special requests the model must honor.
	Instructions string
}

// FromPlan builds a request from a stored plan, including its regeneration
// instructions.
func FromPlan(p *plan.Plan) Request {
	return Request{
		Destination:    p.Destination,
		Dates:          p.Dates(),
		TravelGroup:    string(p.TravelGroup),
		Interests:      p.Interests,
		Budget:         p.Budget,
		Transportation: p.Transportation,
		Flight:         p.Flight,
		Accommodation:  p.Accommodation,
		Instructions:   p.RegenerationInstructions,
	}
}

// DayContext describes the day being reorganized.
type DayContext struct {
	Destination string
	Date        string
	Budget      string
}

// text decodes a JSON string, number or null into a string. Models are not
// consistent about quoting costs.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*t = text(n.String())
	return nil
}

// wire types mirror the JSON shape the prompts ask for.
type wireActivity struct {
	Time           text `json:"time"`
	Duration       text `json:"duration"`
	Activity       text `json:"activity"`
	Location       text `json:"location"`
	Cost           text `json:"cost"`
	Transportation text `json:"transportation"`
	Notes          text `json:"notes,omitempty"`
}

type wireDay struct {
	Date       text           `json:"date"`
	Activities []wireActivity `json:"activities"`
	DailyCost  text           `json:"dailyCost"`
}

type wirePlan struct {
	DailyPlans   []wireDay `json:"dailyPlans"`
	TotalCost    text      `json:"totalCost"`
	GeneralNotes text      `json:"generalNotes"`
}

type wireActivities struct {
	Activities []wireActivity `json:"activities"`
}

func validatePlan(p wirePlan) error {
	if len(p.DailyPlans) == 0 {
		return errors.New("no daily plans")
	}
	for i, d := range p.DailyPlans {
		if d.Date == "" {
			return fmt.Errorf("day %d has no date", i+1)
		}
	}
	return nil
}

func validateActivities(a wireActivities) error {
	if a.Activities == nil {
		return errors.New("missing activities")
	}
	return nil
}

func (p wirePlan) itinerary() *itinerary.Itinerary {
	it := &itinerary.Itinerary{
		TotalCost:    string(p.TotalCost),
		GeneralNotes: string(p.GeneralNotes),
		DailyPlans:   make([]itinerary.DayPlan, len(p.DailyPlans)),
	}
	for i, d := range p.DailyPlans {
		it.DailyPlans[i] = itinerary.DayPlan{
			Date:       string(d.Date),
			DailyCost:  string(d.DailyCost),
			Activities: toActivities(d.Activities),
		}
	}
	return it
}

func toActivities(in []wireActivity) []itinerary.Activity {
	out := make([]itinerary.Activity, len(in))
	for i, a := range in {
		out[i] = itinerary.Activity{
			Time:           string(a.Time),
			Duration:       string(a.Duration),
			Activity:       string(a.Activity),
			Location:       string(a.Location),
			Cost:           string(a.Cost),
			Transportation: string(a.Transportation),
			Notes:          string(a.Notes),
		}
	}
	return out
}

// fromActivities drops location data; the model never sees it.
func fromActivities(in []itinerary.Activity) []wireActivity {
	out := make([]wireActivity, len(in))
	for i, a := range in {
		out[i] = wireActivity{
			Time:           text(a.Time),
			Duration:       text(a.Duration),
			Activity:       text(a.Activity),
			Location:       text(a.Location),
			Cost:           text(a.Cost),
			Transportation: text(a.Transportation),
			Notes:          text(a.Notes),
		}
	}
	return out
}
