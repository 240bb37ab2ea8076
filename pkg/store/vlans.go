package store

import (
	"context"

	"github.com/anaeng/aura/pkg/fsm"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/vlan"
)

// AllVlanRanges returns the full VLAN range advertised on the STP.
func (s *Store) AllVlanRanges(ctx context.Context, stpID uint) (vlan.Ranges, error) {
	stp, err := s.GetSTP(ctx, stpID)
	if err != nil {
		return vlan.Ranges{}, err
	}
	return vlan.Parse(stp.VlanRange)
}

// InUseVlanRanges returns the VLANs claimed on the STP by reservations in a
// resource-holding state, on either the source or destination side.
func (s *Store) InUseVlanRanges(ctx context.Context, stpID uint) (vlan.Ranges, error) {
	activeStates := fsm.ActiveStateValues()

	var sourceVlans []int
	if err := s.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("source_stp_id = ? AND state IN ?", stpID, activeStates).
		Pluck("source_vlan", &sourceVlans).Error; err != nil {
		return vlan.Ranges{}, err
	}

	var destVlans []int
	if err := s.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("dest_stp_id = ? AND state IN ?", stpID, activeStates).
		Pluck("dest_vlan", &destVlans).Error; err != nil {
		return vlan.Ranges{}, err
	}

	return vlan.New(sourceVlans...).Union(vlan.New(destVlans...)), nil
}

// FreeVlanRanges returns the VLANs on the STP still available for new
// reservations: the advertised range minus everything in use.
func (s *Store) FreeVlanRanges(ctx context.Context, stpID uint) (vlan.Ranges, error) {
	all, err := s.AllVlanRanges(ctx, stpID)
	if err != nil {
		return vlan.Ranges{}, err
	}
	inUse, err := s.InUseVlanRanges(ctx, stpID)
	if err != nil {
		return vlan.Ranges{}, err
	}
	return all.Difference(inUse), nil
}
