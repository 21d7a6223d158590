package scraper

import (
	"fmt"
	"strings"

	"github.com/use-agent/jobsnap/models"
)

// State is a step of one browser session.
type State int

const (
	StateInit State = iota
	StateNavigatePending
	StateContentLoaded
	StateActionPending
	StateListPresent
	StateExtracting
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateInit:            "init",
	StateNavigatePending: "navigate_pending",
	StateContentLoaded:   "content_loaded",
	StateActionPending:   "action_pending",
	StateListPresent:     "list_present",
	StateExtracting:      "extracting",
	StateFailed:          "failed",
	StateClosed:          "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal successors of each state. Failed is reachable
// from every state that is not terminal and is handled separately.
var transitions = map[State][]State{
	StateInit:            {StateNavigatePending},
	StateNavigatePending: {StateContentLoaded},
	StateContentLoaded:   {StateActionPending, StateListPresent},
	StateActionPending:   {StateListPresent},
	StateListPresent:     {StateExtracting},
	StateExtracting:      {StateClosed},
	StateFailed:          {StateClosed},
}

// CanTransition reports whether from → to is a legal session step.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateFailed && from != StateClosed
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine tracks the current state and every state visited.
type machine struct {
	current State
	history []State
}

func newMachine() *machine {
	return &machine{current: StateInit, history: []State{StateInit}}
}

func (m *machine) to(next State) error {
	if !CanTransition(m.current, next) {
		return models.NewScrapeError(models.ErrCodeInternal,
			fmt.Sprintf("illegal session transition %s -> %s", m.current, next), nil)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}

// fail moves to Failed unless the session already ended.
func (m *machine) fail() {
	if CanTransition(m.current, StateFailed) {
		m.current = StateFailed
		m.history = append(m.history, StateFailed)
	}
}

// path renders the history as "init>navigate_pending>...".
func (m *machine) path() string {
	parts := make([]string, len(m.history))
	for i, s := range m.history {
		parts[i] = s.String()
	}
	return strings.Join(parts, ">")
}
