package cli

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/plan"
	"github.com/evcraddock/trip-planner/internal/poll"
)

func TestWatchModelAttempt(t *testing.T) {
	m := newWatchModel("p1", 60, nil)

	next, _ := m.Update(attemptMsg(poll.Attempt{N: 3, Status: plan.StatusGenerating}))
	view := next.(watchModel).View()

	assert.Contains(t, view, "Generating plan p1")
	assert.Contains(t, view, "check 3/60 · generating")
}

func TestWatchModelDone(t *testing.T) {
	m := newWatchModel("p1", 60, nil)
	it := &itinerary.Itinerary{PlanID: "p1"}

	next, cmd := m.Update(doneMsg{itinerary: it})
	wm := next.(watchModel)

	assert.True(t, wm.done)
	assert.Same(t, it, wm.result)
	assert.NoError(t, wm.err)
	require.NotNil(t, cmd, "expected quit command")
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, wm.View())
}

func TestWatchModelInterrupt(t *testing.T) {
	aborted := false
	m := newWatchModel("p1", 60, func() { aborted = true })

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	wm := next.(watchModel)

	assert.True(t, aborted, "abort callback")
	assert.ErrorIs(t, wm.err, errWatchInterrupted)
}

func TestPrintAttempt(t *testing.T) {
	var buf strings.Builder
	printAttempt(&buf, poll.Attempt{N: 2, Status: plan.StatusGenerating}, 60)
	printAttempt(&buf, poll.Attempt{N: 3, Err: errors.New("connection refused")}, 60)

	assert.Equal(t, "check 2/60: generating\ncheck 3/60: connection refused\n", buf.String())
}
