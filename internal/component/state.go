package component

import (
	"fmt"
	"strings"

	"github.com/tphakala/dspcore/internal/errors"
)

// State is a component lifecycle state.
type State uint8

const (
	StateReady State = iota
	StatePrepare
	StatePreActive
	StateActive
	StatePaused
	stateCount
)

var stateNames = [stateCount]string{"READY", "PREPARE", "PRE_ACTIVE", "ACTIVE", "PAUSED"}

func (s State) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Trigger is a lifecycle command. Values follow the host protocol
// numbering.
type Trigger uint8

const (
	TriggerStop Trigger = iota
	TriggerStart
	TriggerPause
	TriggerRelease
	TriggerReset
	TriggerPrepare
	TriggerXrun
	TriggerPreStart
	TriggerPreRelease
	triggerCount
)

var triggerNames = [triggerCount]string{
	"STOP", "START", "PAUSE", "RELEASE", "RESET", "PREPARE", "XRUN", "PRE_START", "PRE_RELEASE",
}

func (t Trigger) String() string {
	if t < triggerCount {
		return triggerNames[t]
	}
	return fmt.Sprintf("Trigger(%d)", uint8(t))
}

// ParseTrigger accepts the names printed by String, case-insensitively.
func ParseTrigger(s string) (Trigger, error) {
	for i, name := range triggerNames {
		if strings.EqualFold(s, name) {
			return Trigger(i), nil
		}
	}
	return 0, errors.Newf("unknown trigger %q", s).
		Component(ComponentName).
		Category(errors.CategoryInvalidParams).
		Build()
}

// Target is the state a trigger moves to.
func (t Trigger) Target() State {
	switch t {
	case TriggerPrepare:
		return StatePrepare
	case TriggerPreStart, TriggerPreRelease:
		return StatePreActive
	case TriggerStart, TriggerRelease:
		return StateActive
	case TriggerPause:
		return StatePaused
	default:
		return StateReady
	}
}

// Status distinguishes a transition from a no-op on success.
type Status uint8

const (
	StatusOK Status = iota
	StatusAlreadySet
)

func (s Status) String() string {
	if s == StatusAlreadySet {
		return "ALREADY_SET"
	}
	return "OK"
}

// AlreadySetPolicy selects what a trigger to the current state reports.
// The two host protocol generations differ and callers depend on it.
type AlreadySetPolicy uint8

const (
	// PolicyIPC4 reports StatusAlreadySet.
	PolicyIPC4 AlreadySetPolicy = iota
	// PolicyIPC3 reports StatusOK.
	PolicyIPC3
)

// ParseAlreadySetPolicy accepts "ipc3" and "ipc4".
func ParseAlreadySetPolicy(s string) (AlreadySetPolicy, error) {
	switch strings.ToLower(s) {
	case "ipc4", "":
		return PolicyIPC4, nil
	case "ipc3":
		return PolicyIPC3, nil
	default:
		return 0, errors.Newf("unknown already-set policy %q", s).
			Component(ComponentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func (p AlreadySetPolicy) String() string {
	if p == PolicyIPC3 {
		return "ipc3"
	}
	return "ipc4"
}

func (p AlreadySetPolicy) status() Status {
	if p == PolicyIPC3 {
		return StatusOK
	}
	return StatusAlreadySet
}

// allowed reports whether cmd may be issued from s.
func allowed(cmd Trigger, s State) bool {
	switch cmd {
	case TriggerPrepare:
		return s == StateReady
	case TriggerPreStart:
		return s == StatePrepare
	case TriggerStart, TriggerRelease:
		return s == StatePreActive
	case TriggerPause:
		return s == StateActive
	case TriggerPreRelease:
		return s == StatePaused
	case TriggerStop:
		return s == StateActive || s == StatePaused
	case TriggerReset, TriggerXrun:
		return true
	default:
		return false
	}
}

// nextState applies the transition table. STOP from READY is rejected
// rather than treated as already set: a stopped component was never
// started.
func nextState(cmd Trigger, cur State, policy AlreadySetPolicy) (State, Status, bool) {
	if cmd >= triggerCount {
		return cur, StatusOK, false
	}
	target := cmd.Target()
	if target == cur && cmd != TriggerStop {
		return cur, policy.status(), true
	}
	if !allowed(cmd, cur) {
		return cur, StatusOK, false
	}
	return target, StatusOK, true
}
