package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/store"
	"github.com/anaeng/aura/pkg/vlan"
)

// Reconciler applies freshly parsed topology information to the database.
// STPs and SDPs that vanished from the topology are soft-deleted so that
// reservations referencing them keep their history.
type Reconciler struct {
	store *store.Store
}

func NewReconciler(s *store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// ReconcileSTPs upserts every discovered STP and deactivates the ones no
// longer present in any topology.
func (r *Reconciler) ReconcileSTPs(ctx context.Context, stps []*models.STP) error {
	seen := make([]string, 0, len(stps))
	for _, discovered := range stps {
		seen = append(seen, discovered.StpID)

		existing, err := r.store.GetSTPByStpID(ctx, discovered.StpID)
		if errors.Is(err, models.ErrSTPNotFound) {
			logger.Info("adding new STP", "stpId", discovered.StpID, "vlanRange", discovered.VlanRange)
			if err := r.store.CreateSTP(ctx, discovered); err != nil {
				return fmt.Errorf("failed to create STP %s: %w", discovered.StpID, err)
			}
			continue
		}
		if err != nil {
			return err
		}

		if stpChanged(existing, discovered) {
			logger.Info("updating existing STP", "stpId", discovered.StpID, "vlanRange", discovered.VlanRange)
			existing.InboundPort = discovered.InboundPort
			existing.OutboundPort = discovered.OutboundPort
			existing.InboundAlias = discovered.InboundAlias
			existing.OutboundAlias = discovered.OutboundAlias
			existing.VlanRange = discovered.VlanRange
			existing.Description = discovered.Description
			existing.Active = true
			if err := r.store.SaveSTP(ctx, existing); err != nil {
				return fmt.Errorf("failed to update STP %s: %w", discovered.StpID, err)
			}
		}
	}

	deactivated, err := r.store.DeactivateSTPsNotIn(ctx, seen)
	if err != nil {
		return err
	}
	if deactivated > 0 {
		logger.Info("deactivated vanished STPs", "count", deactivated)
	}
	return nil
}

func stpChanged(existing, discovered *models.STP) bool {
	return !equalPtr(existing.InboundPort, discovered.InboundPort) ||
		!equalPtr(existing.OutboundPort, discovered.OutboundPort) ||
		!equalPtr(existing.InboundAlias, discovered.InboundAlias) ||
		!equalPtr(existing.OutboundAlias, discovered.OutboundAlias) ||
		existing.VlanRange != discovered.VlanRange ||
		existing.Description != discovered.Description ||
		!existing.Active
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// isSDP reports whether two STPs form a service demarcation point: each
// side's aliases must point at the other side's unidirectional ports, in
// both directions.
func isSDP(a, z *models.STP) bool {
	return a.HasAlias() && z.HasAlias() &&
		equalPtr(a.InboundAlias, z.OutboundPort) &&
		equalPtr(a.OutboundAlias, z.InboundPort) &&
		equalPtr(z.InboundAlias, a.OutboundPort) &&
		equalPtr(z.OutboundAlias, a.InboundPort)
}

// ReconcileSDPs recomputes the SDP set from the active STPs. An SDP is an
// unordered pair; each discovered link is stored once regardless of which
// side was seen first. SDPs whose endpoints no longer alias each other are
// deactivated, including when only the far side vanished.
func (r *Reconciler) ReconcileSDPs(ctx context.Context) error {
	stps, err := r.store.ListActiveSTPs(ctx)
	if err != nil {
		return err
	}

	var seen []uint
	for i, a := range stps {
		for _, z := range stps[i+1:] {
			if !isSDP(a, z) {
				continue
			}

			description := fmt.Sprintf("%s <-> %s", a.Description, z.Description)
			vlanRange := overlappingRange(a, z)

			existing, err := r.store.GetSDPByPair(ctx, a.ID, z.ID)
			if errors.Is(err, models.ErrSDPNotFound) {
				logger.Info("adding new SDP", "stpA", a.StpID, "stpZ", z.StpID, "vlanRange", vlanRange)
				created := &models.SDP{
					StpAID:      a.ID,
					StpZID:      z.ID,
					VlanRange:   vlanRange,
					Description: description,
					Active:      true,
				}
				if err := r.store.CreateSDP(ctx, created); err != nil {
					return fmt.Errorf("failed to create SDP %s <-> %s: %w", a.StpID, z.StpID, err)
				}
				seen = append(seen, created.ID)
				continue
			}
			if err != nil {
				return err
			}

			if existing.VlanRange != vlanRange || existing.Description != description || !existing.Active {
				logger.Info("updating existing SDP", "stpA", a.StpID, "stpZ", z.StpID, "vlanRange", vlanRange)
				existing.VlanRange = vlanRange
				existing.Description = description
				existing.Active = true
				if err := r.store.SaveSDP(ctx, existing); err != nil {
					return fmt.Errorf("failed to update SDP %s <-> %s: %w", a.StpID, z.StpID, err)
				}
			}
			seen = append(seen, existing.ID)
		}
	}

	deactivated, err := r.store.DeactivateSDPsNotIn(ctx, seen)
	if err != nil {
		return err
	}
	if deactivated > 0 {
		logger.Info("deactivated vanished SDPs", "count", deactivated)
	}
	return nil
}

// overlappingRange is the VLAN range usable across the link: the
// intersection of both sides. Unparsable ranges fall back to the a side.
func overlappingRange(a, z *models.STP) string {
	rangeA, errA := vlan.Parse(a.VlanRange)
	rangeZ, errZ := vlan.Parse(z.VlanRange)
	if errA != nil || errZ != nil {
		return a.VlanRange
	}
	return rangeA.Intersect(rangeZ).String()
}
