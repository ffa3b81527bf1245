// Package tuihost implements host.Host on top of bubbletea, the teacher
// repo's terminal event-loop library. bubbletea has no browser-style idle
// API, so per the spec's own design note (§9 "idle scheduling
// abstraction") we synthesise one: a low-priority timer measures out a
// fixed idle budget, and both idle and zero-delay callbacks are delivered
// as tea.Msg values so bubbletea's single Update loop — the same
// serial-delivery guarantee a browser's event loop gives idle callbacks —
// is what actually runs them.
package tuihost

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/tokline/host"
)

// DefaultIdleBudget is the simulated idle window length, in the same
// ballpark as the "typically ≤ 50ms" the spec names for a real browser
// idle deadline.
const DefaultIdleBudget = 16 * time.Millisecond

// lowPriorityDelay is how long RequestIdleCallback waits before handing
// control back, giving input/paint messages already queued a chance to be
// processed first.
const lowPriorityDelay = 2 * time.Millisecond

type deadline struct {
	end time.Time
}

func (d deadline) TimeRemaining() float64 {
	return float64(time.Until(d.end).Microseconds()) / 1000
}

type idleMsg struct {
	cb func(host.Deadline)
	dl deadline
}

type zeroDelayMsg struct {
	cb func()
}

// Host bridges host.Host to a running *tea.Program.
type Host struct {
	program    *tea.Program
	idleBudget time.Duration
}

// New returns a Host that delivers callbacks through program. Bind it
// with SetProgram once the tea.Program exists (tea.NewProgram and the
// Host typically need each other, so construction is two steps — see
// cmd/tokline for the wiring).
func New(idleBudget time.Duration) *Host {
	if idleBudget <= 0 {
		idleBudget = DefaultIdleBudget
	}
	return &Host{idleBudget: idleBudget}
}

// SetProgram binds the running program. Must be called before any
// RequestIdleCallback/ScheduleZeroDelay call reaches the wire.
func (h *Host) SetProgram(p *tea.Program) {
	h.program = p
}

// RequestIdleCallback schedules cb to run on the program's Update loop
// after a short low-priority delay, with a Deadline over h.idleBudget.
func (h *Host) RequestIdleCallback(cb func(host.Deadline)) {
	go func() {
		time.Sleep(lowPriorityDelay)
		dl := deadline{end: time.Now().Add(h.idleBudget)}
		h.program.Send(idleMsg{cb: cb, dl: dl})
	}()
}

// ScheduleZeroDelay posts cb to run on the next Update tick with no
// artificial delay — cooperative yielding, not a fresh idle window.
func (h *Host) ScheduleZeroDelay(cb func()) {
	h.program.Send(zeroDelayMsg{cb: cb})
}

// Now returns the wall clock in milliseconds.
func (h *Host) Now() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}

// Model is a minimal tea.Model whose only job is to dispatch idleMsg and
// zeroDelayMsg to their callbacks on bubbletea's single update loop,
// giving the scheduler its single-cooperative-thread guarantee. Embed it
// (or delegate Update to it) alongside any real UI model sharing the same
// program.
type Model struct{}

func (Model) Init() tea.Cmd { return nil }

func (Model) View() string { return "" }

func (Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case idleMsg:
		m.cb(m.dl)
	case zeroDelayMsg:
		m.cb()
	}
	return Model{}, nil
}
