package nsi

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/fsm"
	"github.com/anaeng/aura/pkg/models"
)

// Requester sends NSI-CS v2 requests to a provider agent and interprets the
// synchronous part of the exchange. The asynchronous confirmations arrive on
// the callback endpoint, correlated through the store.
type Requester struct {
	client      *Client
	templates   *Templates
	providerURL string
	providerID  string
	replyTo     string
}

// NewRequester wires a Requester against one provider. replyTo is the full
// callback URL the provider posts confirmations to.
func NewRequester(client *Client, templates *Templates, providerURL, providerID, replyTo string) *Requester {
	return &Requester{
		client:      client,
		templates:   templates,
		providerURL: providerURL,
		providerID:  providerID,
		replyTo:     replyTo,
	}
}

// ProviderID returns the provider NSA identifier this requester talks to.
func (r *Requester) ProviderID() string {
	return r.providerID
}

// send posts a rendered message and returns the parsed reply, surfacing SOAP
// faults as *ServiceError.
func (r *Requester) send(ctx context.Context, message string) (Document, error) {
	reply, err := r.client.PostSOAP(ctx, r.providerURL, []byte(message))
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider reply: %w", err)
	}
	if fault := doc.Fault(); fault != nil {
		return nil, fault
	}
	return doc, nil
}

// SendReserve submits the initial reservation request and returns the
// connectionId the provider assigned.
func (r *Requester) SendReserve(ctx context.Context, correlationID uuid.UUID, reservation *models.Reservation, source, dest *models.STP) (uuid.UUID, error) {
	message, err := r.templates.RenderReserve(ReserveFields{
		CorrelationID: correlationID,
		ReplyTo:       r.replyTo,
		ProviderID:    r.providerID,
		Reservation:   reservation,
		SourceSTP:     source,
		DestSTP:       dest,
	})
	if err != nil {
		return uuid.Nil, err
	}

	reply, err := r.send(ctx, message)
	if err != nil {
		return uuid.Nil, err
	}

	connectionID, ok := reply.DigUUID("Envelope", "Body", "reserveResponse", "connectionId")
	if !ok {
		return uuid.Nil, fmt.Errorf("reserve reply carries no connectionId")
	}
	logger.Debug("reserve accepted", "connectionId", connectionID, "correlationId", correlationID)
	return connectionID, nil
}

// SendConnectionMessage submits one of the per-connection requests (commit,
// abort, provision, release, terminate, timeout ack, query recursive). The
// synchronous reply is only an acceptance; the result arrives as a callback.
func (r *Requester) SendConnectionMessage(ctx context.Context, kind MessageKind, correlationID, connectionID uuid.UUID) error {
	message, err := r.templates.RenderConnectionMessage(kind, ConnectionFields{
		CorrelationID: correlationID,
		ReplyTo:       r.replyTo,
		ProviderID:    r.providerID,
		ConnectionID:  connectionID,
	})
	if err != nil {
		return err
	}

	if _, err := r.send(ctx, message); err != nil {
		return err
	}
	logger.Debug("request accepted", "kind", kind, "connectionId", connectionID, "correlationId", correlationID)
	return nil
}

// ConnectionStatus is the remote view of one connection as reported by a
// synchronous summary query.
type ConnectionStatus struct {
	ConnectionID     uuid.UUID
	ReservationState string
	ProvisionState   string
	LifecycleState   string
	DataPlaneActive  bool
}

// LocalState maps the provider's three-part state onto the single connection
// state tracked here. The data plane flag disambiguates Provisioned circuits
// that are actually carrying traffic.
func (s ConnectionStatus) LocalState() fsm.State {
	switch s.LifecycleState {
	case "Terminated":
		return fsm.ConnectionTerminated
	case "Failed":
		return fsm.ConnectionFailed
	}
	switch s.ReservationState {
	case "ReserveChecking":
		return fsm.ConnectionReserveChecking
	case "ReserveHeld":
		return fsm.ConnectionReserveHeld
	case "ReserveFailed":
		return fsm.ConnectionReserveFailed
	}
	switch s.ProvisionState {
	case "Provisioned":
		if s.DataPlaneActive {
			return fsm.ConnectionActive
		}
		return fsm.ConnectionProvisioned
	case "Released":
		return fsm.ConnectionReserveCommitted
	}
	return fsm.ConnectionReserveCommitted
}

// QuerySummarySync asks the provider for the current state of one connection
// and blocks for the synchronous reply.
func (r *Requester) QuerySummarySync(ctx context.Context, correlationID, connectionID uuid.UUID) (*ConnectionStatus, error) {
	message, err := r.templates.RenderQuerySummarySync(ConnectionFields{
		CorrelationID: correlationID,
		ReplyTo:       r.replyTo,
		ProviderID:    r.providerID,
		ConnectionID:  connectionID,
	})
	if err != nil {
		return nil, err
	}

	reply, err := r.send(ctx, message)
	if err != nil {
		return nil, err
	}

	confirmed, ok := reply.Dig("Envelope", "Body", "querySummarySyncConfirmed")
	if !ok {
		return nil, fmt.Errorf("unexpected query reply without querySummarySyncConfirmed")
	}
	body, _ := confirmed.(map[string]any)

	for _, item := range List(body["reservation"]) {
		reservation, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := reservation["connectionId"].(uuid.UUID)
		if id != connectionID {
			continue
		}
		status := &ConnectionStatus{ConnectionID: id}
		if states, ok := reservation["connectionStates"].(map[string]any); ok {
			status.ReservationState, _ = states["reservationState"].(string)
			status.ProvisionState, _ = states["provisionState"].(string)
			status.LifecycleState, _ = states["lifecycleState"].(string)
			if dps, ok := states["dataPlaneStatus"].(map[string]any); ok {
				active, _ := dps["active"].(string)
				status.DataPlaneActive = active == "true"
			}
		}
		return status, nil
	}
	return nil, fmt.Errorf("provider reported no reservation for connection %s", connectionID)
}
