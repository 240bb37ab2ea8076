package store

import (
	"context"

	"github.com/anaeng/aura/pkg/models"
)

// ============================================
// SDP OPERATIONS
// ============================================

func (s *Store) GetSDP(ctx context.Context, id uint) (*models.SDP, error) {
	var sdp models.SDP
	err := s.db.WithContext(ctx).
		Preload("StpA").
		Preload("StpZ").
		Where("id = ?", id).
		First(&sdp).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSDPNotFound)
	}
	return &sdp, nil
}

func (s *Store) ListSDPs(ctx context.Context) ([]*models.SDP, error) {
	var sdps []*models.SDP
	if err := s.db.WithContext(ctx).
		Preload("StpA").
		Preload("StpZ").
		Find(&sdps).Error; err != nil {
		return nil, err
	}
	return sdps, nil
}

// GetSDPByPair looks an SDP up by its STP pair in either order.
func (s *Store) GetSDPByPair(ctx context.Context, aID, zID uint) (*models.SDP, error) {
	var sdp models.SDP
	err := s.db.WithContext(ctx).
		Where("(stp_a_id = ? AND stp_z_id = ?) OR (stp_a_id = ? AND stp_z_id = ?)", aID, zID, zID, aID).
		First(&sdp).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSDPNotFound)
	}
	return &sdp, nil
}

func (s *Store) CreateSDP(ctx context.Context, sdp *models.SDP) error {
	return s.db.WithContext(ctx).Create(sdp).Error
}

func (s *Store) SaveSDP(ctx context.Context, sdp *models.SDP) error {
	return s.db.WithContext(ctx).Save(sdp).Error
}

// DeactivateSDPsNotIn soft-deletes every active SDP whose id is absent from
// the given set of SDP ids observed in the current reconcile pass.
func (s *Store) DeactivateSDPsNotIn(ctx context.Context, seenIDs []uint) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.SDP{}).Where("active = ?", true)
	if len(seenIDs) > 0 {
		query = query.Where("id NOT IN ?", seenIDs)
	}
	result := query.Update("active", false)
	return result.RowsAffected, result.Error
}
