package itinerary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/trip-planner/internal/geo"
)

func sample() *Itinerary {
	return &Itinerary{
		PlanID:  "p1",
		OwnerID: "alice",
		DailyPlans: []DayPlan{
			{Date: "2025-05-10", Activities: []Activity{
				{Time: "09:00", Activity: "Breakfast", Location: "Time Out Market"},
				{Time: "11:00", Activity: "Castle visit", Location: " Castelo de São Jorge "},
				{Time: "13:00", Activity: "Walk", Location: ""},
			}},
			{Date: "2025-05-11", Activities: []Activity{
				{Time: "10:00", Activity: "Tram ride", Location: "Castelo de São Jorge"},
				{Time: "12:00", Activity: "Lunch", Location: "time out market"},
				{Time: "15:00", Activity: "Museum", Location: "MAAT", LocationData: &geo.LocationRecord{Lat: 38.69, Lng: -9.19}},
			}},
		},
	}
}

func TestLocationTexts(t *testing.T) {
	got := sample().LocationTexts()
	assert.Equal(t, []string{"Time Out Market", "Castelo de São Jorge", "time out market", "MAAT"}, got)
}

func TestLocationTextsEmpty(t *testing.T) {
	assert.Empty(t, (&Itinerary{}).LocationTexts())
}

func TestUnresolved(t *testing.T) {
	assert.Equal(t, 4, sample().Unresolved())
}

func TestCloneIsDeep(t *testing.T) {
	orig := sample()
	cp := orig.Clone()

	cp.DailyPlans[0].Activities[0].Location = "changed"
	cp.DailyPlans[1].Activities[2].LocationData.Lat = 0
	cp.DailyPlans = append(cp.DailyPlans, DayPlan{Date: "2025-05-12"})

	assert.Equal(t, "Time Out Market", orig.DailyPlans[0].Activities[0].Location)
	assert.Equal(t, 38.69, orig.DailyPlans[1].Activities[2].LocationData.Lat)
	assert.Len(t, orig.DailyPlans, 2)
}

func TestCloneActivitiesNil(t *testing.T) {
	require.Nil(t, CloneActivities(nil))
}
