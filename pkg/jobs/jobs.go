// Package jobs runs the outbound NSI message flow in the background. HTTP
// handlers and callback processing enqueue jobs instead of doing network I/O
// inline; a bounded worker pool executes them.
//
// Every job follows the same order: mint a fresh correlationId, persist the
// state transition, then talk to the provider. The database is never left
// claiming an in-flight message that was not at least attempted.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/fsm"
	"github.com/anaeng/aura/pkg/metrics"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
)

// Kind selects which NSI message a job sends.
type Kind string

const (
	KindReserve           Kind = "reserve"
	KindReserveCommit     Kind = "reserveCommit"
	KindProvision         Kind = "provision"
	KindRelease           Kind = "release"
	KindTerminate         Kind = "terminate"
	KindReserveTimeoutAck Kind = "reserveTimeoutAck"
)

// Job is one unit of outbound work. The (Kind, ReservationID) pair is also
// the dispatcher's dedup key.
type Job struct {
	Kind          Kind
	ReservationID uint
}

// sender is the part of the NSI requester the runner needs.
type sender interface {
	SendReserve(ctx context.Context, correlationID uuid.UUID, reservation *models.Reservation, source, dest *models.STP) (uuid.UUID, error)
	SendConnectionMessage(ctx context.Context, kind nsi.MessageKind, correlationID, connectionID uuid.UUID) error
}

// Runner executes jobs against the store and the provider.
type Runner struct {
	store  *store.Store
	sender sender
}

func NewRunner(s *store.Store, sender sender) *Runner {
	return &Runner{store: s, sender: sender}
}

// connectionJobs maps every per-connection kind to the state machine event
// recorded before sending and the message that goes out.
var connectionJobs = map[Kind]struct {
	event   fsm.Event
	message nsi.MessageKind
}{
	KindReserveCommit: {fsm.NsiSendReserveCommit, nsi.MessageReserveCommit},
	KindProvision:     {fsm.NsiSendProvision, nsi.MessageProvision},
	KindRelease:       {fsm.NsiSendRelease, nsi.MessageRelease},
	KindTerminate:     {fsm.NsiSendTerminate, nsi.MessageTerminate},
}

// Run executes one job. Transport errors and provider faults are logged on
// the reservation and, where the state machine allows it, recorded as a
// connection error.
func (r *Runner) Run(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindReserve:
		return r.runReserve(ctx, job.ReservationID)
	case KindReserveTimeoutAck:
		return r.runReserveTimeoutAck(ctx, job.ReservationID)
	default:
		cj, ok := connectionJobs[job.Kind]
		if !ok {
			return fmt.Errorf("unknown job kind %q", job.Kind)
		}
		return r.runConnectionMessage(ctx, job.ReservationID, cj.event, cj.message)
	}
}

func (r *Runner) runReserve(ctx context.Context, reservationID uint) error {
	// The transition authorises the send and mints the correlator in one
	// transaction; a refused transition leaves both untouched.
	_, correlationID, err := r.store.TransitionForSend(ctx, reservationID, fsm.NsiSendReserve)
	if err != nil {
		return err
	}
	// Reload with the STP rows the reserve template needs.
	reservation, err := r.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	metrics.MessagesSent.WithLabelValues(string(KindReserve)).Inc()
	connectionID, err := r.sender.SendReserve(ctx, correlationID, reservation, reservation.SourceStp, reservation.DestStp)
	if err != nil {
		return r.fail(ctx, reservationID, KindReserve, err)
	}
	return r.store.SetConnectionID(ctx, reservationID, connectionID)
}

func (r *Runner) runConnectionMessage(ctx context.Context, reservationID uint, event fsm.Event, message nsi.MessageKind) error {
	reservation, correlationID, err := r.store.TransitionForSend(ctx, reservationID, event)
	if err != nil {
		return err
	}
	if reservation.ConnectionID == nil {
		return fmt.Errorf("reservation %d has no connectionId yet", reservationID)
	}

	metrics.MessagesSent.WithLabelValues(string(message)).Inc()
	if err := r.sender.SendConnectionMessage(ctx, message, correlationID, *reservation.ConnectionID); err != nil {
		return r.fail(ctx, reservationID, Kind(message), err)
	}
	return nil
}

// runReserveTimeoutAck answers a reserveTimeout notification. The state was
// already moved by the callback; this only aborts the held reservation at
// the provider.
func (r *Runner) runReserveTimeoutAck(ctx context.Context, reservationID uint) error {
	reservation, err := r.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.ConnectionID == nil {
		return fmt.Errorf("reservation %d has no connectionId yet", reservationID)
	}
	// Rotate only once the send is certain to be attempted.
	correlationID, err := r.store.RotateCorrelationID(ctx, reservationID)
	if err != nil {
		return err
	}

	metrics.MessagesSent.WithLabelValues(string(KindReserveTimeoutAck)).Inc()
	if err := r.sender.SendConnectionMessage(ctx, nsi.MessageReserveTimeoutAck, correlationID, *reservation.ConnectionID); err != nil {
		return r.fail(ctx, reservationID, KindReserveTimeoutAck, err)
	}
	return nil
}

// fail records a send failure on the reservation log and moves the state
// machine to the error branch when the current state has one.
func (r *Runner) fail(ctx context.Context, reservationID uint, kind Kind, sendErr error) error {
	metrics.MessageFailures.WithLabelValues(string(kind)).Inc()
	if err := r.store.AppendLog(ctx, reservationID, fmt.Sprintf("%s failed: %v", kind, sendErr)); err != nil {
		logger.Error("failed to log send failure", "reservation", reservationID, "error", err)
	}
	if _, err := r.store.TransitionReservation(ctx, reservationID, fsm.ConnectionError); err != nil {
		var terr *fsm.TransitionError
		if !errors.As(err, &terr) {
			return err
		}
		logger.Warn("no error transition from current state", "reservation", reservationID, "kind", kind)
	}
	return sendErr
}
