// Package fsm holds the per-reservation connection state machine.
//
// The machine is deliberately side-effect free: Next is a pure function over
// (state, event). Callers persist the resulting state inside the transaction
// that authorised the event and enqueue any follow-up NSI message only after
// the transaction commits. If the process crashes between the two, the worst
// case is a skipped outbound request that the user can retry.
package fsm

import "fmt"

// State is a connection lifecycle state, stored verbatim on the reservation row.
type State string

const (
	ConnectionNew               State = "ConnectionNew"
	ConnectionReserveChecking   State = "ConnectionReserveChecking"
	ConnectionReserveHeld       State = "ConnectionReserveHeld"
	ConnectionReserveFailed     State = "ConnectionReserveFailed"
	ConnectionReserveTimeout    State = "ConnectionReserveTimeout"
	ConnectionReserveCommitting State = "ConnectionReserveCommitting"
	ConnectionReserveCommitted  State = "ConnectionReserveCommitted"
	ConnectionProvisioning      State = "ConnectionProvisioning"
	ConnectionProvisioned       State = "ConnectionProvisioned"
	ConnectionActive            State = "ConnectionActive"
	ConnectionReleasing         State = "ConnectionReleasing"
	ConnectionReleased          State = "ConnectionReleased"
	ConnectionFailed            State = "ConnectionFailed"
	ConnectionTerminating       State = "ConnectionTerminating"
	ConnectionTerminated        State = "ConnectionTerminated"
	ConnectionDeleted           State = "ConnectionDeleted"
)

// Event drives a transition. Send events originate from user commands,
// receive events from NSI provider callbacks.
type Event string

const (
	NsiSendReserve                   Event = "nsi_send_reserve"
	NsiReceiveReserveConfirmed       Event = "nsi_receive_reserve_confirmed"
	NsiReceiveReserveFailed          Event = "nsi_receive_reserve_failed"
	ConnectionError                  Event = "connection_error"
	NsiReceiveReserveTimeout         Event = "nsi_receive_reserve_timeout"
	NsiSendReserveCommit             Event = "nsi_send_reserve_commit"
	NsiReceiveReserveCommitConfirmed Event = "nsi_receive_reserve_commit_confirmed"
	NsiSendProvision                 Event = "nsi_send_provision"
	NsiReceiveProvisionConfirmed     Event = "nsi_receive_provision_confirmed"
	NsiReceiveDataPlaneUp            Event = "nsi_receive_data_plane_up"
	NsiSendRelease                   Event = "nsi_send_release"
	NsiReceiveReleaseConfirmed       Event = "nsi_receive_release_confirmed"
	NsiReceiveDataPlaneDown          Event = "nsi_receive_data_plane_down"
	NsiReceiveErrorEvent             Event = "nsi_receive_error_event"
	NsiSendTerminate                 Event = "nsi_send_terminate"
	NsiReceiveTerminateConfirmed     Event = "nsi_receive_terminate_confirmed"
	GuiDeleteConnection              Event = "gui_delete_connection"
)

// transitions maps every legal (event, from) pair to its target state.
var transitions = map[Event]map[State]State{
	NsiSendReserve: {
		ConnectionNew:           ConnectionReserveChecking,
		ConnectionReserveFailed: ConnectionReserveChecking,
		ConnectionTerminated:    ConnectionReserveChecking,
	},
	NsiReceiveReserveConfirmed: {
		ConnectionReserveChecking: ConnectionReserveHeld,
	},
	NsiReceiveReserveFailed: {
		ConnectionReserveChecking: ConnectionReserveFailed,
	},
	ConnectionError: {
		ConnectionReserveChecking: ConnectionReserveFailed,
	},
	NsiReceiveReserveTimeout: {
		ConnectionReserveHeld: ConnectionReserveTimeout,
	},
	NsiSendReserveCommit: {
		ConnectionReserveHeld: ConnectionReserveCommitting,
	},
	NsiReceiveReserveCommitConfirmed: {
		ConnectionReserveCommitting: ConnectionReserveCommitted,
	},
	NsiSendProvision: {
		ConnectionReserveCommitted: ConnectionProvisioning,
	},
	NsiReceiveProvisionConfirmed: {
		ConnectionProvisioning: ConnectionProvisioned,
	},
	NsiReceiveDataPlaneUp: {
		ConnectionProvisioned: ConnectionActive,
	},
	NsiSendRelease: {
		ConnectionActive: ConnectionReleasing,
	},
	NsiReceiveReleaseConfirmed: {
		ConnectionReleasing: ConnectionReleased,
	},
	NsiReceiveDataPlaneDown: {
		ConnectionReleased: ConnectionReserveCommitted,
	},
	NsiReceiveErrorEvent: {
		ConnectionActive:      ConnectionFailed,
		ConnectionProvisioned: ConnectionFailed,
	},
	NsiSendTerminate: {
		ConnectionReserveTimeout:   ConnectionTerminating,
		ConnectionReserveCommitted: ConnectionTerminating,
		ConnectionFailed:           ConnectionTerminating,
		ConnectionReserveFailed:    ConnectionTerminating,
	},
	NsiReceiveTerminateConfirmed: {
		ConnectionTerminating: ConnectionTerminated,
	},
	GuiDeleteConnection: {
		ConnectionTerminated: ConnectionDeleted,
	},
}

// AllStates lists every declared state.
var AllStates = []State{
	ConnectionNew,
	ConnectionReserveChecking,
	ConnectionReserveHeld,
	ConnectionReserveFailed,
	ConnectionReserveTimeout,
	ConnectionReserveCommitting,
	ConnectionReserveCommitted,
	ConnectionProvisioning,
	ConnectionProvisioned,
	ConnectionActive,
	ConnectionReleasing,
	ConnectionReleased,
	ConnectionFailed,
	ConnectionTerminating,
	ConnectionTerminated,
	ConnectionDeleted,
}

// ActiveStates are the states in which a reservation holds VLAN resources on
// its STPs. Everything except New, ReserveFailed, ReserveTimeout, Terminated
// and Deleted counts as active for the free-VLAN computation.
var ActiveStates = []State{
	ConnectionReserveChecking,
	ConnectionReserveHeld,
	ConnectionReserveCommitting,
	ConnectionReserveCommitted,
	ConnectionProvisioning,
	ConnectionProvisioned,
	ConnectionActive,
	ConnectionReleasing,
	ConnectionReleased,
	ConnectionFailed,
	ConnectionTerminating,
}

// ActiveStateValues returns ActiveStates as plain strings for use in SQL IN clauses.
func ActiveStateValues() []string {
	values := make([]string, len(ActiveStates))
	for i, s := range ActiveStates {
		values[i] = string(s)
	}
	return values
}

// TransitionError reports an event applied in a state that is not a legal
// source for it.
type TransitionError struct {
	Event Event
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s not allowed from state %s", e.Event, e.State)
}

// IsValid reports whether s is a declared state of the machine.
func IsValid(s State) bool {
	for _, state := range AllStates {
		if state == s {
			return true
		}
	}
	return false
}

// Next returns the state the machine moves to when event fires in state
// current. A *TransitionError is returned when the pair is not in the
// transition table; the caller logs it and performs no side effect.
func Next(current State, event Event) (State, error) {
	if next, ok := transitions[event][current]; ok {
		return next, nil
	}
	return current, &TransitionError{Event: event, State: current}
}
