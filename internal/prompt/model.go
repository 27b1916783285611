// Package prompt renders the subject-facing gesture prompt: an instructions
// screen, the gesture cue during each trial, and the rest countdown. The
// operator drives the session from the same screen (space to begin or pause,
// q to abort).
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/record"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
)

// Hooks are the operator controls the prompt forwards to the session.
type Hooks struct {
	Begin func()      // space on the instructions screen
	Pause func() bool // space during the run; reports the resulting state
	Abort func()      // q
}

// Info is the static header content.
type Info struct {
	Subject    string
	Sitting    int
	Position   int
	TrialTotal int
	GestureDur time.Duration
	RestDur    time.Duration
}

type screen int

const (
	screenIntro screen = iota
	screenRun
	screenDone
)

type scheduleEventMsg struct {
	event schedule.Event
	ok    bool // false when the event stream closed
}

type tickMsg time.Time

// Model is the root bubbletea model for the prompt.
type Model struct {
	info   Info
	events <-chan schedule.Event
	health func() map[string]record.Stats
	hooks  Hooks

	screen  screen
	paused  bool
	aborted bool

	trialID int
	gesture string
	state   schedule.State
	entered time.Time // wall time of the last transition
	now     time.Time

	streams map[string]record.Stats

	width  int
	height int
}

// New creates the prompt model. health may be nil.
func New(info Info, events <-chan schedule.Event, health func() map[string]record.Stats, hooks Hooks) Model {
	return Model{
		info:    info,
		events:  events,
		health:  health,
		hooks:   hooks,
		screen:  screenIntro,
		trialID: -1,
		now:     time.Now(),
	}
}

// Run runs the prompt until the schedule finishes or the operator aborts.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// Init starts the event reader and the render tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEventCmd(m.events), tickCmd())
}

func waitEventCmd(events <-chan schedule.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return scheduleEventMsg{event: ev, ok: ok}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case scheduleEventMsg:
		if !msg.ok {
			m.screen = screenDone
			return m, tea.Quit
		}
		ev := msg.event
		if ev.State == schedule.StateDone {
			m.screen = screenDone
			m.state = schedule.StateDone
			return m, waitEventCmd(m.events)
		}
		m.trialID = ev.TrialID
		m.gesture = ev.Gesture
		m.state = ev.State
		m.entered = ev.Wall
		return m, waitEventCmd(m.events)

	case tickMsg:
		m.now = time.Time(msg)
		if m.health != nil {
			m.streams = m.health()
		}
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.aborted = true
		if m.hooks.Abort != nil {
			m.hooks.Abort()
		}
		return m, tea.Quit

	case " ":
		switch m.screen {
		case screenIntro:
			m.screen = screenRun
			if m.hooks.Begin != nil {
				m.hooks.Begin()
			}
		case screenRun:
			// The scheduler owns the pause state; display what it reports so
			// the indicator cannot drift from the real schedule.
			if m.hooks.Pause != nil {
				m.paused = m.hooks.Pause()
			}
		}
		return m, nil
	}

	return m, nil
}

// View renders the current screen.
func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, "")

	switch m.screen {
	case screenIntro:
		sections = append(sections, m.renderIntro()...)
	case screenRun:
		sections = append(sections, m.renderRun()...)
	case screenDone:
		sections = append(sections, holdStyle.Render("  All trials recorded."))
		sections = append(sections, dimStyle.Render("  Saving..."))
	}

	sections = append(sections, "")
	sections = append(sections, m.renderStreams())
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("GESTURE RECORDING")
	meta := dimStyle.Render(fmt.Sprintf("  %s  S%d  P%d",
		m.info.Subject, m.info.Sitting, m.info.Position))
	return title + meta
}

func (m Model) renderIntro() []string {
	return []string{
		"  Hold each gesture while it is shown on screen, then relax",
		"  during the rest period.",
		"",
		fmt.Sprintf("  %d trials, %s hold, %s rest.",
			m.info.TrialTotal, m.info.GestureDur, m.info.RestDur),
		"",
		"  " + footerKeyStyle.Render("Press Space to begin"),
	}
}

func (m Model) renderRun() []string {
	if m.paused {
		return []string{
			"",
			"  " + pausedStyle.Render("PAUSED"),
			dimStyle.Render("  resumes at the next trial boundary"),
		}
	}

	progress := dimStyle.Render(fmt.Sprintf("  trial %d/%d", m.trialID+1, m.info.TrialTotal))

	switch m.state {
	case schedule.StatePrompting:
		return []string{
			progress,
			"",
			"  " + dimStyle.Render("get ready:"),
			"  " + gestureStyle.Render(strings.ToUpper(m.gesture)),
		}
	case schedule.StateHolding:
		remaining := m.remaining(m.info.GestureDur)
		return []string{
			progress,
			"",
			"  " + holdStyle.Render("HOLD ") + gestureStyle.Render(strings.ToUpper(m.gesture)),
			"  " + holdStyle.Render(fmt.Sprintf("%.1fs", remaining.Seconds())),
		}
	case schedule.StateResting:
		remaining := m.remaining(m.info.RestDur)
		return []string{
			progress,
			"",
			"  " + restStyle.Render("rest"),
			"  " + restStyle.Render(fmt.Sprintf("%.1fs", remaining.Seconds())),
		}
	default:
		return []string{
			progress,
			"",
			dimStyle.Render("  waiting for schedule..."),
		}
	}
}

func (m Model) remaining(total time.Duration) time.Duration {
	if m.entered.IsZero() {
		return total
	}
	left := total - m.now.Sub(m.entered)
	if left < 0 {
		left = 0
	}
	return left
}

func (m Model) renderStreams() string {
	if len(m.streams) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.streams))
	for _, name := range sortedStreamNames(m.streams) {
		st := m.streams[name]
		if st.Disconnected {
			parts = append(parts, errorStyle.Render(fmt.Sprintf("%s ✕ disconnected", name)))
		} else {
			parts = append(parts, recordingDotStyle.Render("●")+dimStyle.Render(
				fmt.Sprintf(" %s %d", name, st.Captured)))
		}
	}
	return "  " + strings.Join(parts, "   ")
}

func sortedStreamNames(m map[string]record.Stats) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m Model) renderFooter() string {
	var parts []string
	if m.screen == screenRun {
		if m.paused {
			parts = append(parts, footerKeyStyle.Render("Space")+footerDescStyle.Render(" Resume"))
		} else {
			parts = append(parts, footerKeyStyle.Render("Space")+footerDescStyle.Render(" Pause"))
		}
	}
	parts = append(parts, footerKeyStyle.Render("q")+footerDescStyle.Render(" Abort"))
	return "  " + strings.Join(parts, "  ")
}
