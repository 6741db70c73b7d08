package tts

// PlaybackState represents the current state of the playback core.
type PlaybackState int

const (
	// StateIdle indicates nothing is playing and no work is in flight.
	StateIdle PlaybackState = iota
	// StateBusy indicates transient work: cache check, download or synthesis.
	StateBusy
	// StatePlaying indicates audio is actively playing.
	StatePlaying
	// StatePaused indicates playback is paused and can be resumed.
	StatePaused
)

// String returns the string representation of the state.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether the state represents in-progress playback.
func (s PlaybackState) Active() bool {
	return s == StatePlaying || s == StatePaused
}

// EngineMode selects which engine session handles playback.
type EngineMode int

const (
	// ModeFastest uses the platform speech engine: instant, lower quality.
	ModeFastest EngineMode = iota
	// ModeBalanced uses the neural engine with a medium-quality voice.
	ModeBalanced
	// ModeBest uses the neural engine with the highest-quality voice.
	ModeBest
)

// String returns the string representation of the mode.
func (m EngineMode) String() string {
	switch m {
	case ModeFastest:
		return "fastest"
	case ModeBalanced:
		return "balanced"
	case ModeBest:
		return "best"
	default:
		return "unknown"
	}
}

// Neural reports whether the mode is served by the neural engine.
func (m EngineMode) Neural() bool {
	return m == ModeBalanced || m == ModeBest
}

// ParseMode parses a mode name as found in config files and flags.
func ParseMode(s string) (EngineMode, bool) {
	switch s {
	case "fastest":
		return ModeFastest, true
	case "balanced":
		return ModeBalanced, true
	case "best":
		return ModeBest, true
	}
	return ModeFastest, false
}

// StateMachine manages playback state transitions.
type StateMachine struct {
	current     PlaybackState
	transitions map[PlaybackState][]PlaybackState
	onEnter     map[PlaybackState]func()
	onExit      map[PlaybackState]func()
}

// NewStateMachine creates a state machine with the valid playback
// transitions. Busy may return directly to Idle on failure; Playing and
// Paused may flip between each other until a stop or natural end.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[PlaybackState][]PlaybackState{
			StateIdle:    {StateBusy, StatePlaying},
			StateBusy:    {StatePlaying, StatePaused, StateIdle},
			StatePlaying: {StatePaused, StateIdle},
			StatePaused:  {StatePlaying, StateIdle},
		},
		onEnter: make(map[PlaybackState]func()),
		onExit:  make(map[PlaybackState]func()),
	}
}

// Transition attempts to move to the specified state, running exit and enter
// callbacks on success. Transitioning to the current state is a no-op that
// reports success.
func (sm *StateMachine) Transition(to PlaybackState) bool {
	if to == sm.current {
		return true
	}

	valid := false
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	if fn, ok := sm.onExit[sm.current]; ok && fn != nil {
		fn()
	}
	sm.current = to
	if fn, ok := sm.onEnter[to]; ok && fn != nil {
		fn()
	}
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() PlaybackState {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state PlaybackState, fn func()) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback for exiting a state.
func (sm *StateMachine) OnExit(state PlaybackState, fn func()) {
	sm.onExit[state] = fn
}
