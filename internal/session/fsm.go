package session

// This file implements the per-connection session state machine as a pure
// function over a transition table -- no side effects, no Session
// dependency. The connection worker applies events and executes the
// returned actions.
//
// State diagram:
//
//	            Login                PollerStart
//	Connected ---------> LoggedIn ---------------> Polling
//	    |                   |                         |
//	    |       Close       |          Close          |
//	    +-------------------+------------+------------+
//	                                     |
//	                                     V
//	                                  Closed
//
// PollerStart only happens on Jimi sessions; Ruptela sessions stay in
// LoggedIn until close.

// State is the lifecycle state of one device connection.
type State uint8

const (
	// StateConnected is the initial state: socket accepted, no login seen.
	StateConnected State = iota

	// StateLoggedIn means the device identified itself and was acknowledged.
	StateLoggedIn

	// StatePolling means a poll scheduler is running for this session.
	StatePolling

	// StateClosed is terminal. No frame is written after it is entered.
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateLoggedIn:
		return "LoggedIn"
	case StatePolling:
		return "Polling"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Event is a session lifecycle event.
type Event uint8

const (
	// EventLogin is a decoded login frame with a valid IMEI.
	EventLogin Event = iota

	// EventPollerStart marks the poll scheduler as running.
	EventPollerStart

	// EventClose is socket close, idle timeout or shutdown.
	EventClose
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventLogin:
		return "Login"
	case EventPollerStart:
		return "PollerStart"
	case EventClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// Action is a side-effect the caller must execute after a transition.
type Action uint8

const (
	// ActionStampIMEI records the device identity on the session. The IMEI
	// is immutable afterwards.
	ActionStampIMEI Action = iota + 1

	// ActionSendLoginAck writes the login acknowledgement. The device
	// disconnects without it.
	ActionSendLoginAck

	// ActionSchedulePoller arms the poll scheduler after the settle delay.
	ActionSchedulePoller

	// ActionCancelPoller stops the poll scheduler synchronously.
	ActionCancelPoller

	// ActionRelease removes the session from the registry.
	ActionRelease
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionStampIMEI:
		return "StampIMEI"
	case ActionSendLoginAck:
		return "SendLoginAck"
	case ActionSchedulePoller:
		return "SchedulePoller"
	case ActionCancelPoller:
		return "CancelPoller"
	case ActionRelease:
		return "Release"
	default:
		return "Unknown"
	}
}

// stateEvent is the transition table key: current state + incoming event.
type stateEvent struct {
	state State
	event Event
}

// transition describes the target state and side-effects for a single
// transition.
type transition struct {
	newState State
	actions  []Action
}

// FSMResult holds the outcome of applying an event.
type FSMResult struct {
	// OldState is the state before the event was applied.
	OldState State

	// NewState is the state after the event was applied. Equal to OldState
	// when the event is ignored.
	NewState State

	// Actions lists the side-effects that the caller must execute.
	Actions []Action

	// Changed is true when NewState differs from OldState. A duplicate
	// login is the notable Changed=false case.
	Changed bool
}

// fsmTable is the complete session transition table. Unlisted
// (state, event) pairs are silently ignored.
var fsmTable = map[stateEvent]transition{
	// Connected + Login -> LoggedIn. Identity first, then the ACK: the
	// poll scheduler must never observe a session without an IMEI.
	{StateConnected, EventLogin}: {
		newState: StateLoggedIn,
		actions:  []Action{ActionStampIMEI, ActionSendLoginAck, ActionSchedulePoller},
	},

	// LoggedIn + Login: duplicate login, ignored. Some firmware re-sends
	// the login after a missed ACK; answering again confuses it.
	{StateLoggedIn, EventLogin}: {
		newState: StateLoggedIn,
		actions:  nil,
	},

	// Polling + Login: same duplicate, the scheduler keeps running.
	{StatePolling, EventLogin}: {
		newState: StatePolling,
		actions:  nil,
	},

	// LoggedIn + PollerStart -> Polling.
	{StateLoggedIn, EventPollerStart}: {
		newState: StatePolling,
		actions:  nil,
	},

	// Close from any live state is terminal.
	{StateConnected, EventClose}: {
		newState: StateClosed,
		actions:  []Action{ActionRelease},
	},
	{StateLoggedIn, EventClose}: {
		newState: StateClosed,
		actions:  []Action{ActionCancelPoller, ActionRelease},
	},
	{StatePolling, EventClose}: {
		newState: StateClosed,
		actions:  []Action{ActionCancelPoller, ActionRelease},
	},
}

// ApplyEvent applies an event to the given state and returns the result.
//
// This is a pure function with no side effects. The caller executes the
// returned actions. Unlisted (state, event) pairs are ignored: Closed
// accepts nothing, a PollerStart racing a close is dropped.
func ApplyEvent(currentState State, event Event) FSMResult {
	key := stateEvent{state: currentState, event: event}

	tr, ok := fsmTable[key]
	if !ok {
		return FSMResult{
			OldState: currentState,
			NewState: currentState,
			Actions:  nil,
			Changed:  false,
		}
	}

	return FSMResult{
		OldState: currentState,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  currentState != tr.newState,
	}
}
