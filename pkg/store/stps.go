package store

import (
	"context"

	"github.com/anaeng/aura/pkg/models"
)

// ============================================
// STP OPERATIONS
// ============================================

func (s *Store) GetSTP(ctx context.Context, id uint) (*models.STP, error) {
	var stp models.STP
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&stp).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSTPNotFound)
	}
	return &stp, nil
}

func (s *Store) GetSTPByStpID(ctx context.Context, stpID string) (*models.STP, error) {
	var stp models.STP
	err := s.db.WithContext(ctx).Where("stp_id = ?", stpID).First(&stp).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSTPNotFound)
	}
	return &stp, nil
}

func (s *Store) ListSTPs(ctx context.Context) ([]*models.STP, error) {
	var stps []*models.STP
	if err := s.db.WithContext(ctx).Order("stp_id").Find(&stps).Error; err != nil {
		return nil, err
	}
	return stps, nil
}

func (s *Store) ListActiveSTPs(ctx context.Context) ([]*models.STP, error) {
	var stps []*models.STP
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("stp_id").Find(&stps).Error; err != nil {
		return nil, err
	}
	return stps, nil
}

func (s *Store) CreateSTP(ctx context.Context, stp *models.STP) error {
	if err := s.db.WithContext(ctx).Create(stp).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateSTP
		}
		return err
	}
	return nil
}

func (s *Store) SaveSTP(ctx context.Context, stp *models.STP) error {
	return s.db.WithContext(ctx).Save(stp).Error
}

// DeactivateSTPsNotIn soft-deletes every active STP whose stpId is absent
// from the given snapshot. Rows are never hard-deleted so reservations keep
// their foreign keys. Returns the number of rows deactivated.
func (s *Store) DeactivateSTPsNotIn(ctx context.Context, seenStpIDs []string) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.STP{}).Where("active = ?", true)
	if len(seenStpIDs) > 0 {
		query = query.Where("stp_id NOT IN ?", seenStpIDs)
	}
	result := query.Update("active", false)
	return result.RowsAffected, result.Error
}
