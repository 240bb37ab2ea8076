package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/fsm"
	"github.com/anaeng/aura/pkg/jobs"
	"github.com/anaeng/aura/pkg/metrics"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
)

// Dispatcher is the part of the job dispatcher handlers need.
type Dispatcher interface {
	Submit(job jobs.Job) bool
}

// CallbackHandler receives the asynchronous NSI-CS messages a provider posts
// back to us. Every request is answered with a generic acknowledgement and
// status 200, even when the message itself is dropped as a protocol
// violation: the provider only needs to know the delivery worked.
type CallbackHandler struct {
	store      *store.Store
	dispatcher Dispatcher
	templates  *nsi.Templates
	providerID string
}

func NewCallbackHandler(s *store.Store, d Dispatcher, t *nsi.Templates, providerID string) *CallbackHandler {
	return &CallbackHandler{store: s, dispatcher: d, templates: t, providerID: providerID}
}

// Receive handles POST /api/nsi/callback/.
func (h *CallbackHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		BadRequest(w, "Failed to read request body")
		return
	}

	doc, err := nsi.ParseDocument(body)
	if err != nil {
		logger.Warn("dropping unparsable callback", "error", err)
		metrics.CallbacksDropped.Inc()
		h.acknowledge(w, uuid.Nil)
		return
	}
	correlationID, _ := doc.CorrelationID()

	action, ok := nsi.ParseAction(r.Header.Get("SOAPAction"))
	if !ok {
		logger.Warn("dropping callback with unknown SOAPAction", "soapaction", r.Header.Get("SOAPAction"))
		metrics.CallbacksDropped.Inc()
		h.acknowledge(w, correlationID)
		return
	}
	metrics.CallbacksReceived.WithLabelValues(action.BodyElement()).Inc()

	bodyName, bodyElement, ok := doc.Body()
	if !ok || bodyName != action.BodyElement() {
		logger.Warn("dropping callback whose body does not match its SOAPAction",
			"soapaction", action.BodyElement(), "body", bodyName)
		metrics.CallbacksDropped.Inc()
		h.acknowledge(w, correlationID)
		return
	}

	reservation, err := h.matchReservation(r.Context(), action, correlationID, bodyElement)
	if err != nil {
		logger.Warn("dropping callback for unknown reservation",
			"action", action.BodyElement(), "correlationId", correlationID, "error", err)
		metrics.CallbacksDropped.Inc()
		h.acknowledge(w, correlationID)
		return
	}

	if err := h.apply(r.Context(), action, reservation, bodyElement); err != nil {
		var terr *fsm.TransitionError
		if errors.As(err, &terr) {
			logger.Warn("callback not allowed in current state",
				"action", action.BodyElement(), "reservation", reservation.ID, "error", err)
		} else {
			logger.Error("failed to process callback",
				"action", action.BodyElement(), "reservation", reservation.ID, "error", err)
		}
	}
	h.acknowledge(w, correlationID)
}

// matchReservation finds the reservation a callback belongs to. Spontaneous
// notifications carry no usable correlation and are matched through the
// connectionId in their body instead.
func (h *CallbackHandler) matchReservation(ctx context.Context, action nsi.Action, correlationID uuid.UUID, body map[string]any) (*models.Reservation, error) {
	if action.CorrelatesByConnectionID() {
		connectionID, ok := body["connectionId"].(uuid.UUID)
		if !ok {
			return nil, fmt.Errorf("callback carries no connectionId")
		}
		return h.store.GetReservationByConnectionID(ctx, connectionID)
	}
	if correlationID == uuid.Nil {
		return nil, fmt.Errorf("callback carries no correlationId")
	}
	return h.store.GetReservationByCorrelationID(ctx, correlationID)
}

// apply runs the state transition for a callback and queues any follow-up
// message. Follow-ups go out only after the transition is safely persisted.
func (h *CallbackHandler) apply(ctx context.Context, action nsi.Action, reservation *models.Reservation, body map[string]any) error {
	switch action {
	case nsi.ActionReserveConfirmed:
		if _, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveReserveConfirmed); err != nil {
			return err
		}
		h.dispatcher.Submit(jobs.Job{Kind: jobs.KindReserveCommit, ReservationID: reservation.ID})
		return nil

	case nsi.ActionReserveFailed:
		h.logServiceException(ctx, reservation.ID, "reserve failed", body)
		_, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveReserveFailed)
		return err

	case nsi.ActionReserveTimeout:
		if _, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveReserveTimeout); err != nil {
			return err
		}
		h.dispatcher.Submit(jobs.Job{Kind: jobs.KindReserveTimeoutAck, ReservationID: reservation.ID})
		return nil

	case nsi.ActionReserveCommitConfirmed:
		if _, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveReserveCommitConfirmed); err != nil {
			return err
		}
		h.dispatcher.Submit(jobs.Job{Kind: jobs.KindProvision, ReservationID: reservation.ID})
		return nil

	case nsi.ActionProvisionConfirmed:
		_, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveProvisionConfirmed)
		return err

	case nsi.ActionReleaseConfirmed:
		_, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveReleaseConfirmed)
		return err

	case nsi.ActionTerminateConfirmed:
		_, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveTerminateConfirmed)
		return err

	case nsi.ActionDataPlaneStateChange:
		event := fsm.NsiReceiveDataPlaneDown
		if status, ok := body["dataPlaneStatus"].(map[string]any); ok {
			if active, _ := status["active"].(string); active == "true" {
				event = fsm.NsiReceiveDataPlaneUp
			}
		}
		_, err := h.store.TransitionReservation(ctx, reservation.ID, event)
		return err

	case nsi.ActionErrorEvent:
		h.logServiceException(ctx, reservation.ID, "error event", body)
		_, err := h.store.TransitionReservation(ctx, reservation.ID, fsm.NsiReceiveErrorEvent)
		return err
	}
	return fmt.Errorf("unhandled action %s", action)
}

// logServiceException records a provider-reported error on the reservation.
func (h *CallbackHandler) logServiceException(ctx context.Context, reservationID uint, prefix string, body map[string]any) {
	message := prefix
	if serr := nsi.ServiceException(body); serr != nil {
		message = fmt.Sprintf("%s: %s (%s)", prefix, serr.Text, serr.ErrorID)
	}
	if err := h.store.AppendLog(ctx, reservationID, message); err != nil {
		logger.Error("failed to log service exception", "reservation", reservationID, "error", err)
	}
}

// acknowledge replies with the generic acknowledgement, echoing the caller's
// correlationId.
func (h *CallbackHandler) acknowledge(w http.ResponseWriter, correlationID uuid.UUID) {
	message, err := h.templates.RenderAcknowledgement(correlationID, h.providerID)
	if err != nil {
		InternalServerError(w, "Failed to render acknowledgement")
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(message))
}
