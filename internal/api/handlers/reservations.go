package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/fsm"
	"github.com/anaeng/aura/pkg/jobs"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
	"github.com/anaeng/aura/pkg/vlan"
)

// logStreamInterval is how often the SSE endpoint polls for new log lines.
const logStreamInterval = 500 * time.Millisecond

// errVlanUnavailable aborts a create whose requested VLAN is taken; the
// handler answers with the free set instead of this sentinel.
var errVlanUnavailable = errors.New("requested VLAN not in the free set")

// stateQuerier asks the provider for the authoritative state of a
// connection.
type stateQuerier interface {
	QuerySummarySync(ctx context.Context, correlationID, connectionID uuid.UUID) (*nsi.ConnectionStatus, error)
}

// ReservationHandler manages circuit reservations and their lifecycle
// commands.
type ReservationHandler struct {
	store      *store.Store
	dispatcher Dispatcher
	querier    stateQuerier
	validate   *validator.Validate
}

func NewReservationHandler(s *store.Store, d Dispatcher, q stateQuerier) *ReservationHandler {
	return &ReservationHandler{store: s, dispatcher: d, querier: q, validate: validator.New()}
}

// CreateReservationRequest is the request body for POST /api/reservations/.
type CreateReservationRequest struct {
	Description string     `json:"description" validate:"required"`
	SourceStpID uint       `json:"source_stp_id" validate:"required"`
	DestStpID   uint       `json:"dest_stp_id" validate:"required"`
	SourceVlan  int        `json:"source_vlan" validate:"gte=2,lte=4094"`
	DestVlan    int        `json:"dest_vlan" validate:"gte=2,lte=4094"`
	Bandwidth   int        `json:"bandwidth" validate:"gt=0"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// ReservationResponse is the response body for reservation endpoints.
type ReservationResponse struct {
	ID                  uint       `json:"id"`
	ConnectionID        *uuid.UUID `json:"connection_id,omitempty"`
	GlobalReservationID uuid.UUID  `json:"global_reservation_id"`
	Description         string     `json:"description"`
	StartTime           *time.Time `json:"start_time,omitempty"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	SourceStpID         uint       `json:"source_stp_id"`
	DestStpID           uint       `json:"dest_stp_id"`
	SourceVlan          int        `json:"source_vlan"`
	DestVlan            int        `json:"dest_vlan"`
	Bandwidth           int        `json:"bandwidth"`
	State               string     `json:"state"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func reservationToResponse(r *models.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:                  r.ID,
		ConnectionID:        r.ConnectionID,
		GlobalReservationID: r.GlobalReservationID,
		Description:         r.Description,
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		SourceStpID:         r.SourceStpID,
		DestStpID:           r.DestStpID,
		SourceVlan:          r.SourceVlan,
		DestVlan:            r.DestVlan,
		Bandwidth:           r.Bandwidth,
		State:               r.State,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// Create handles POST /api/reservations/. The requested VLANs must be free
// on both endpoints; a taken VLAN is rejected with the currently free set so
// the caller can pick again without another round trip.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}

	reservation := &models.Reservation{
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		SourceStpID: req.SourceStpID,
		DestStpID:   req.DestStpID,
		SourceVlan:  req.SourceVlan,
		DestVlan:    req.DestVlan,
		Bandwidth:   req.Bandwidth,
	}

	// The free-set check and the insert share one transaction so two
	// concurrent creates cannot both pass the check and double-book a VLAN.
	var rejection string
	err := h.store.Transaction(func(tx *store.Store) error {
		for _, endpoint := range []struct {
			stpID       uint
			requested   int
			description string
		}{
			{req.SourceStpID, req.SourceVlan, "source"},
			{req.DestStpID, req.DestVlan, "destination"},
		} {
			stp, err := tx.GetSTP(r.Context(), endpoint.stpID)
			if err != nil {
				if errors.Is(err, models.ErrSTPNotFound) {
					rejection = fmt.Sprintf("Unknown %s STP %d", endpoint.description, endpoint.stpID)
				}
				return err
			}
			free, err := tx.FreeVlanRanges(r.Context(), stp.ID)
			if err != nil {
				// An unparsable advertised range is the STP's problem, not ours.
				if _, parseErr := vlan.Parse(stp.VlanRange); parseErr != nil {
					rejection = fmt.Sprintf("STP %s advertises no usable VLAN range", stp.StpID)
				}
				return err
			}
			if !free.Contains(endpoint.requested) {
				rejection = fmt.Sprintf("VLAN %d not available on %s STP %s, free: %s",
					endpoint.requested, endpoint.description, stp.StpID, free)
				return errVlanUnavailable
			}
		}
		return tx.CreateReservation(r.Context(), reservation)
	})
	if err != nil {
		if rejection != "" {
			UnprocessableEntity(w, rejection)
			return
		}
		InternalServerError(w, "Failed to create reservation")
		return
	}

	h.dispatcher.Submit(jobs.Job{Kind: jobs.KindReserve, ReservationID: reservation.ID})
	WriteJSONCreated(w, reservationToResponse(reservation))
}

// List handles GET /api/reservations/.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.store.ListReservations(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list reservations")
		return
	}
	response := make([]ReservationResponse, len(reservations))
	for i, reservation := range reservations {
		response[i] = reservationToResponse(reservation)
	}
	WriteJSONOK(w, response)
}

// Get handles GET /api/reservations/{id}.
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	reservation, ok := h.load(w, r)
	if !ok {
		return
	}
	WriteJSONOK(w, reservationToResponse(reservation))
}

// commandEvents maps lifecycle commands to the state machine event checked
// before queueing the outbound message.
var commandEvents = map[jobs.Kind]fsm.Event{
	jobs.KindReserve:   fsm.NsiSendReserve,
	jobs.KindProvision: fsm.NsiSendProvision,
	jobs.KindRelease:   fsm.NsiSendRelease,
	jobs.KindTerminate: fsm.NsiSendTerminate,
}

// command returns a handler for one lifecycle command. The transition is
// validated up front so an impossible command fails synchronously; the job
// performs the authoritative transition again before sending.
func (h *ReservationHandler) command(kind jobs.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservation, ok := h.load(w, r)
		if !ok {
			return
		}
		if _, err := fsm.Next(fsm.State(reservation.State), commandEvents[kind]); err != nil {
			InternalServerError(w, err.Error())
			return
		}
		if !h.dispatcher.Submit(jobs.Job{Kind: kind, ReservationID: reservation.ID}) {
			InternalServerError(w, "Command already in progress")
			return
		}
		WriteJSONOK(w, reservationToResponse(reservation))
	}
}

func (h *ReservationHandler) Provision(w http.ResponseWriter, r *http.Request) {
	h.command(jobs.KindProvision)(w, r)
}

func (h *ReservationHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.command(jobs.KindRelease)(w, r)
}

func (h *ReservationHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	h.command(jobs.KindTerminate)(w, r)
}

// ReserveAgain retries a reservation that failed or was terminated.
func (h *ReservationHandler) ReserveAgain(w http.ResponseWriter, r *http.Request) {
	h.command(jobs.KindReserve)(w, r)
}

// Delete handles DELETE /api/reservations/{id}: a soft delete, only allowed
// once the connection is terminated.
func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	reservation, ok := h.load(w, r)
	if !ok {
		return
	}
	if _, err := h.store.TransitionReservation(r.Context(), reservation.ID, fsm.GuiDeleteConnection); err != nil {
		var terr *fsm.TransitionError
		if errors.As(err, &terr) {
			InternalServerError(w, err.Error())
			return
		}
		InternalServerError(w, "Failed to delete reservation")
		return
	}
	WriteNoContent(w)
}

// Verify handles POST /api/reservations/{id}/verify: it asks the provider
// for the authoritative connection state and repairs the local row on drift.
func (h *ReservationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	reservation, ok := h.load(w, r)
	if !ok {
		return
	}
	if reservation.ConnectionID == nil {
		UnprocessableEntity(w, "Reservation has no connectionId yet")
		return
	}

	correlationID, err := h.store.RotateCorrelationID(r.Context(), reservation.ID)
	if err != nil {
		InternalServerError(w, "Failed to rotate correlationId")
		return
	}
	status, err := h.querier.QuerySummarySync(r.Context(), correlationID, *reservation.ConnectionID)
	if err != nil {
		InternalServerError(w, "Provider query failed: "+err.Error())
		return
	}

	remote := status.LocalState()
	if string(remote) != reservation.State {
		message := fmt.Sprintf("state drift repaired: %s -> %s", reservation.State, remote)
		logger.Warn("repairing reservation state", "reservation", reservation.ID,
			"local", reservation.State, "remote", remote)
		if err := h.store.ForceReservationState(r.Context(), reservation.ID, remote); err != nil {
			InternalServerError(w, "Failed to repair state")
			return
		}
		if err := h.store.AppendLog(r.Context(), reservation.ID, message); err != nil {
			logger.Error("failed to log state repair", "reservation", reservation.ID, "error", err)
		}
		reservation.State = string(remote)
	}
	WriteJSONOK(w, reservationToResponse(reservation))
}

// StreamLog handles GET /api/reservations/{id}/log/sse: a server-sent event
// stream of the reservation log. New entries are pushed as they appear; the
// stream ends when the client disconnects.
func (h *ReservationHandler) StreamLog(w http.ResponseWriter, r *http.Request) {
	reservation, ok := h.load(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		InternalServerError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(logStreamInterval)
	defer ticker.Stop()

	// Cursor on the entry id: a timestamp cursor would skip entries written
	// within the same clock tick as the last one emitted.
	var lastID uint
	for {
		entries, err := h.store.GetLogsAfter(r.Context(), reservation.ID, lastID)
		if err != nil {
			logger.Error("log stream query failed", "reservation", reservation.ID, "error", err)
			return
		}
		for _, entry := range entries {
			fmt.Fprintf(w, "data: %s %s\n\n", entry.Timestamp.UTC().Format(time.RFC3339), entry.Message)
			lastID = entry.ID
		}
		if len(entries) > 0 {
			flusher.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// load fetches the reservation addressed by the {id} URL parameter.
func (h *ReservationHandler) load(w http.ResponseWriter, r *http.Request) (*models.Reservation, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		BadRequest(w, "Invalid reservation id")
		return nil, false
	}
	reservation, err := h.store.GetReservation(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, models.ErrReservationNotFound) {
			NotFound(w, "Reservation not found")
			return nil, false
		}
		InternalServerError(w, "Failed to load reservation")
		return nil, false
	}
	return reservation, true
}
