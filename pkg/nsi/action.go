package nsi

import "strings"

// Action identifies an NSI-CS v2 callback message by its SOAPAction header.
// The set is closed: the callback handler switches exhaustively over these
// values and logs anything else as a protocol violation.
type Action string

const (
	ActionReserveConfirmed       Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/reserveConfirmed"
	ActionReserveFailed          Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/reserveFailed"
	ActionReserveTimeout         Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/reserveTimeout"
	ActionReserveCommitConfirmed Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/reserveCommitConfirmed"
	ActionProvisionConfirmed     Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/provisionConfirmed"
	ActionReleaseConfirmed       Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/releaseConfirmed"
	ActionTerminateConfirmed     Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/terminateConfirmed"
	ActionDataPlaneStateChange   Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/dataPlaneStateChange"
	ActionErrorEvent             Action = "http://schemas.ogf.org/nsi/2013/12/connection/service/errorEvent"
)

// Actions lists every recognized callback action.
var Actions = []Action{
	ActionReserveConfirmed,
	ActionReserveFailed,
	ActionReserveTimeout,
	ActionReserveCommitConfirmed,
	ActionProvisionConfirmed,
	ActionReleaseConfirmed,
	ActionTerminateConfirmed,
	ActionDataPlaneStateChange,
	ActionErrorEvent,
}

// ParseAction maps a SOAPAction header value to an Action. SOAP 1.1 clients
// quote the header; the quotes are stripped before matching.
func ParseAction(header string) (Action, bool) {
	action := Action(strings.Trim(header, `"`))
	for _, known := range Actions {
		if action == known {
			return action, true
		}
	}
	return "", false
}

// BodyElement returns the local name of the callback's body element, which
// equals the last segment of the action URI.
func (a Action) BodyElement() string {
	s := string(a)
	return s[strings.LastIndex(s, "/")+1:]
}

// CorrelatesByConnectionID reports whether the callback is matched to a
// reservation by the connectionId in its body instead of the correlationId
// in its SOAP header. The provider emits these three spontaneously, not in
// reply to an outstanding request of ours.
func (a Action) CorrelatesByConnectionID() bool {
	switch a {
	case ActionErrorEvent, ActionDataPlaneStateChange, ActionReserveTimeout:
		return true
	default:
		return false
	}
}
