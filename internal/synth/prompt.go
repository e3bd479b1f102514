package synth

import (
	"encoding/json"
	"fmt"
	"strings"
)

const planSystemPrompt = `You are an expert travel planner. Generate a detailed day-by-day itinerary from the traveler's preferences.
Respond with a single JSON object of this shape and nothing else:
{
  "dailyPlans": [{
    "date": "YYYY-MM-DD",
    "activities": [{
      "time": "HH:MM",
      "duration": "X hours",
      "activity": "Description",
      "location": "Place name",
      "cost": "Estimated cost",
      "transportation": "How to get there",
      "notes": "Additional information"
    }],
    "dailyCost": "Total cost for the day"
  }],
  "totalCost": "Total trip cost",
  "generalNotes": "Overall trip notes and tips"
}

Use one entry in dailyPlans per calendar day of the trip.
Name each location so it can be found on a map: a venue, landmark or street address, not a description.
Take into account:
- opening hours of attractions
- travel time between locations and a sensible geographic flow, grouping nearby places
- local customs
- weather-appropriate activities
- the budget for activities and meals`

const reorganizeSystemPrompt = `You are an expert travel planner. The traveler edited the activities of one day of their trip.
Reorganize them into a realistic schedule: order them sensibly, adjust times and durations, and fill in transportation between stops.
Keep every activity the traveler listed and keep each "activity" and "location" value exactly as given.
Respond with a single JSON object of this shape and nothing else:
{"activities": [{"time": "HH:MM", "duration": "X hours", "activity": "...", "location": "...", "cost": "...", "transportation": "...", "notes": "..."}]}`

func planUserPrompt(r Request) string {
	var b strings.Builder
	b.WriteString("Create a travel plan for:\n")
	line := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Destination", r.Destination)
	line("Dates", r.Dates)
	line("Travel group", r.TravelGroup)
	line("Interests", r.Interests)
	line("Budget", r.Budget)
	line("Transportation", r.Transportation)
	if r.Flight != nil && r.Flight.Booked {
		line("Flight details", r.Flight.Details)
	}
	if r.Accommodation != nil && r.Accommodation.Booked {
		line("Accommodation", r.Accommodation.Details)
	}
	if strings.TrimSpace(r.Instructions) != "" {
		fmt.Fprintf(&b, "\nSpecial requests (these must be honored, even over the defaults above):\n%s\n", strings.TrimSpace(r.Instructions))
	}
	return b.String()
}

func reorganizeUserPrompt(activities []wireActivity, day DayContext) (string, error) {
	data, err := json.MarshalIndent(wireActivities{Activities: activities}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding activities: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Destination: %s\n", day.Destination)
	if day.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", day.Date)
	}
	if day.Budget != "" {
		fmt.Fprintf(&b, "Budget: %s\n", day.Budget)
	}
	b.WriteString("\nActivities:\n")
	b.Write(data)
	return b.String(), nil
}
