package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/poll"
)

var errWatchInterrupted = errors.New("stopped watching; generation continues on the server")

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4"))
	watchDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	watchErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Wait for a plan's itinerary",
		Long:  "Poll the plan's status every few seconds until its itinerary is ready or generation fails.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0])
		},
	}
}

type attemptMsg poll.Attempt

type doneMsg struct {
	itinerary *itinerary.Itinerary
	err       error
}

// watchModel renders a spinner with the latest poll attempt.
type watchModel struct {
	planID      string
	maxAttempts int
	spinner     spinner.Model
	started     time.Time

	last    poll.Attempt
	done    bool
	result  *itinerary.Itinerary
	err     error
	onAbort func()
}

func newWatchModel(planID string, maxAttempts int, onAbort func()) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = watchTitleStyle
	return watchModel{
		planID:      planID,
		maxAttempts: maxAttempts,
		spinner:     s,
		started:     time.Now(),
		onAbort:     onAbort,
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.done = true
			m.err = errWatchInterrupted
			if m.onAbort != nil {
				m.onAbort()
			}
			return m, tea.Quit
		}
	case attemptMsg:
		m.last = poll.Attempt(msg)
	case doneMsg:
		m.done = true
		m.result = msg.itinerary
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.done {
		return ""
	}
	line := fmt.Sprintf("%s %s", m.spinner.View(), watchTitleStyle.Render("Generating plan "+m.planID))
	status := "waiting for first check"
	if m.last.N > 0 {
		status = fmt.Sprintf("check %d/%d", m.last.N, m.maxAttempts)
		if m.last.Status != "" {
			status += " · " + string(m.last.Status)
		}
	}
	line += "\n  " + watchDimStyle.Render(fmt.Sprintf("%s · %s elapsed", status, time.Since(m.started).Round(time.Second)))
	if m.last.Err != nil {
		line += "\n  " + watchErrStyle.Render(m.last.Err.Error())
	}
	return line + "\n  " + watchDimStyle.Render("press q to stop watching") + "\n"
}

// runWatch polls until the plan is generated, then prints the itinerary.
// Non-terminal output and JSON mode get plain progress lines on stderr.
func runWatch(cmd *cobra.Command, planID string) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	poller := poll.New(newAPIClient())

	var (
		it  *itinerary.Itinerary
		err error
	)
	if isJSON() || !isatty.IsTerminal(os.Stdout.Fd()) {
		it, err = poller.Poll(ctx, planID, func(a poll.Attempt) {
			printAttempt(os.Stderr, a, poller.MaxAttempts)
		})
	} else {
		it, err = watchInteractive(ctx, cancel, poller, planID)
	}
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(os.Stdout, it)
	}
	fmt.Printf("Itinerary ready for plan %s.\n\n", planID)
	printItinerary(os.Stdout, it)
	return nil
}

func watchInteractive(ctx context.Context, cancel context.CancelFunc, poller *poll.Poller, planID string) (*itinerary.Itinerary, error) {
	program := tea.NewProgram(newWatchModel(planID, poller.MaxAttempts, cancel))

	go func() {
		it, err := poller.Poll(ctx, planID, func(a poll.Attempt) {
			program.Send(attemptMsg(a))
		})
		program.Send(doneMsg{itinerary: it, err: err})
	}()

	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("running watcher: %w", err)
	}
	m, ok := final.(watchModel)
	if !ok {
		return nil, fmt.Errorf("unexpected watcher model %T", final)
	}
	return m.result, m.err
}

func printAttempt(w io.Writer, a poll.Attempt, maxAttempts int) {
	if a.Err != nil {
		fmt.Fprintf(w, "check %d/%d: %v\n", a.N, maxAttempts, a.Err)
		return
	}
	fmt.Fprintf(w, "check %d/%d: %s\n", a.N, maxAttempts, a.Status)
}
