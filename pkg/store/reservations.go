package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/fsm"
	"github.com/anaeng/aura/pkg/models"
)

// ============================================
// RESERVATION OPERATIONS
// ============================================

func (s *Store) GetReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	var reservation models.Reservation
	err := s.db.WithContext(ctx).
		Preload("SourceStp").
		Preload("DestStp").
		Preload("SDPs").
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrReservationNotFound)
	}
	return &reservation, nil
}

func (s *Store) GetReservationByConnectionID(ctx context.Context, connectionID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := s.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		First(&reservation).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrReservationNotFound)
	}
	return &reservation, nil
}

func (s *Store) GetReservationByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		First(&reservation).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrReservationNotFound)
	}
	return &reservation, nil
}

func (s *Store) ListReservations(ctx context.Context) ([]*models.Reservation, error) {
	var reservations []*models.Reservation
	if err := s.db.WithContext(ctx).
		Preload("SourceStp").
		Preload("DestStp").
		Order("id").
		Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

func (s *Store) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	if reservation.GlobalReservationID == uuid.Nil {
		reservation.GlobalReservationID = uuid.New()
	}
	if reservation.State == "" {
		reservation.State = string(fsm.ConnectionNew)
	}
	return s.db.WithContext(ctx).Create(reservation).Error
}

func (s *Store) SaveReservation(ctx context.Context, reservation *models.Reservation) error {
	return s.db.WithContext(ctx).Save(reservation).Error
}

// SetConnectionID persists the provider-assigned connection id after a
// successful reserve request.
func (s *Store) SetConnectionID(ctx context.Context, id uint, connectionID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", id).
		Update("connection_id", connectionID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrReservationNotFound
	}
	return nil
}

// RotateCorrelationID mints a fresh correlation id and persists it on the
// reservation. Every outbound NSI message gets its own correlation id so the
// column stays usable as a primary lookup key for async replies.
func (s *Store) RotateCorrelationID(ctx context.Context, id uint) (uuid.UUID, error) {
	correlationID := uuid.New()
	result := s.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", id).
		Update("correlation_id", correlationID)
	if result.Error != nil {
		return uuid.Nil, result.Error
	}
	if result.RowsAffected == 0 {
		return uuid.Nil, models.ErrReservationNotFound
	}
	return correlationID, nil
}

// TransitionReservation applies a state machine event to the reservation and
// persists the resulting state, all inside one transaction. The new state and
// a log line are written before the caller performs any network I/O, so a
// crash between commit and send can at worst skip a request, never desync
// the machine from a later callback.
func (s *Store) TransitionReservation(ctx context.Context, id uint, event fsm.Event) (*models.Reservation, error) {
	var reservation models.Reservation
	err := s.Transaction(func(tx *Store) error {
		if err := tx.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
			return convertNotFoundError(err, models.ErrReservationNotFound)
		}
		next, err := fsm.Next(fsm.State(reservation.State), event)
		if err != nil {
			return err
		}
		previous := reservation.State
		reservation.State = string(next)
		if err := tx.db.WithContext(ctx).
			Model(&models.Reservation{}).
			Where("id = ?", id).
			Update("state", reservation.State).Error; err != nil {
			return err
		}
		return tx.AppendLog(ctx, id, fmt.Sprintf("%s: %s -> %s", event, previous, next))
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("reservation state transition",
		"reservationId", id, "event", string(event), "state", reservation.State)
	return &reservation, nil
}

// TransitionForSend applies a send event and mints the fresh correlationId
// for the outbound message, all inside one transaction. The new correlationId
// only becomes the expected correlator once the transition is legal; a
// refused event rolls back and leaves the one from the last real send in
// place, so an outstanding async reply still matches.
func (s *Store) TransitionForSend(ctx context.Context, id uint, event fsm.Event) (*models.Reservation, uuid.UUID, error) {
	var reservation models.Reservation
	correlationID := uuid.New()
	err := s.Transaction(func(tx *Store) error {
		if err := tx.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
			return convertNotFoundError(err, models.ErrReservationNotFound)
		}
		next, err := fsm.Next(fsm.State(reservation.State), event)
		if err != nil {
			return err
		}
		previous := reservation.State
		reservation.State = string(next)
		reservation.CorrelationID = correlationID
		if err := tx.db.WithContext(ctx).
			Model(&models.Reservation{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"state":          reservation.State,
				"correlation_id": correlationID,
			}).Error; err != nil {
			return err
		}
		return tx.AppendLog(ctx, id, fmt.Sprintf("%s: %s -> %s", event, previous, next))
	})
	if err != nil {
		return nil, uuid.Nil, err
	}
	logger.Debug("reservation state transition",
		"reservationId", id, "event", string(event), "state", reservation.State,
		"correlationId", correlationID)
	return &reservation, correlationID, nil
}

// ForceReservationState overwrites the state column outside the transition
// table. Only the verify/repair path uses this, after querySummarySync showed
// the provider's view diverging from ours.
func (s *Store) ForceReservationState(ctx context.Context, id uint, state fsm.State) error {
	if !fsm.IsValid(state) {
		return fmt.Errorf("not a declared connection state: %s", state)
	}
	return s.Transaction(func(tx *Store) error {
		result := tx.db.WithContext(ctx).
			Model(&models.Reservation{}).
			Where("id = ?", id).
			Update("state", string(state))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrReservationNotFound
		}
		return tx.AppendLog(ctx, id, fmt.Sprintf("state forced to %s after verify", state))
	})
}

// ============================================
// RESERVATION LOG OPERATIONS
// ============================================

// AppendLog adds a line to the reservation's event log.
func (s *Store) AppendLog(ctx context.Context, reservationID uint, message string) error {
	entry := models.LogEntry{
		ReservationID: reservationID,
		Timestamp:     time.Now().UTC(),
		Message:       message,
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

// GetLogsAfter returns log entries for the reservation with an id greater
// than afterID, oldest first. The SSE endpoint polls this every 500ms; the
// id cursor cannot skip entries the way a timestamp cursor would for two
// entries written within the same clock tick.
func (s *Store) GetLogsAfter(ctx context.Context, reservationID uint, afterID uint) ([]*models.LogEntry, error) {
	var entries []*models.LogEntry
	if err := s.db.WithContext(ctx).
		Where("reservation_id = ? AND id > ?", reservationID, afterID).
		Order("id").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
