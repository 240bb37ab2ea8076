package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/store"
)

// linkedSTPs builds two STPs whose aliases point at each other.
func linkedSTPs(aID, zID, vlanRange string) (*models.STP, *models.STP) {
	aIn, aOut := aID+":in", aID+":out"
	zIn, zOut := zID+":in", zID+":out"
	a := &models.STP{
		StpID:         aID,
		InboundPort:   &aIn,
		OutboundPort:  &aOut,
		InboundAlias:  &zOut,
		OutboundAlias: &zIn,
		VlanRange:     vlanRange,
		Description:   aID,
		Active:        true,
	}
	z := &models.STP{
		StpID:         zID,
		InboundPort:   &zIn,
		OutboundPort:  &zOut,
		InboundAlias:  &aOut,
		OutboundAlias: &aIn,
		VlanRange:     vlanRange,
		Description:   zID,
		Active:        true,
	}
	return a, z
}

func TestIsSDP(t *testing.T) {
	a, z := linkedSTPs("a.example:2024:link", "z.example:2024:link", "100-200")
	assert.True(t, isSDP(a, z))
	assert.True(t, isSDP(z, a), "the predicate is symmetric")

	edge := &models.STP{StpID: "a.example:2024:edge", Active: true}
	assert.False(t, isSDP(a, edge))

	// A one-sided alias mismatch breaks the pair.
	other := "elsewhere.example:2024:port:out"
	broken, z2 := linkedSTPs("a.example:2024:link", "z.example:2024:link", "100-200")
	broken.InboundAlias = &other
	assert.False(t, isSDP(broken, z2))
}

func TestReconcileSTPsUpsertsAndDeactivates(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewInMemory()
	require.NoError(t, err)
	r := NewReconciler(s)

	a, z := linkedSTPs("a.example:2024:link", "z.example:2024:link", "100-200")
	require.NoError(t, r.ReconcileSTPs(ctx, []*models.STP{a, z}))

	// Second pass shrinks a's range and drops z entirely.
	a2, _ := linkedSTPs("a.example:2024:link", "z.example:2024:link", "100-150")
	require.NoError(t, r.ReconcileSTPs(ctx, []*models.STP{a2}))

	updated, err := s.GetSTPByStpID(ctx, "a.example:2024:link")
	require.NoError(t, err)
	assert.Equal(t, "100-150", updated.VlanRange)
	assert.True(t, updated.Active)

	vanished, err := s.GetSTPByStpID(ctx, "z.example:2024:link")
	require.NoError(t, err)
	assert.False(t, vanished.Active, "vanished STPs are soft-deleted, not removed")
}

func TestReconcileSDPsPairsAndOverlap(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewInMemory()
	require.NoError(t, err)
	r := NewReconciler(s)

	a, z := linkedSTPs("a.example:2024:link", "z.example:2024:link", "100-200")
	z.VlanRange = "150-250"
	require.NoError(t, r.ReconcileSTPs(ctx, []*models.STP{a, z}))
	require.NoError(t, r.ReconcileSDPs(ctx))

	sdp, err := s.GetSDPByPair(ctx, a.ID, z.ID)
	require.NoError(t, err)
	assert.True(t, sdp.Active)
	// The stored range is the overlap of both sides.
	assert.Equal(t, "150-200", sdp.VlanRange)

	// A second pass discovers nothing new and changes nothing.
	require.NoError(t, r.ReconcileSDPs(ctx))
	again, err := s.GetSDPByPair(ctx, a.ID, z.ID)
	require.NoError(t, err)
	assert.Equal(t, sdp.ID, again.ID)
}

func TestReconcileSDPsRelinking(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewInMemory()
	require.NoError(t, err)
	r := NewReconciler(s)

	// First pass: X links to Y.
	x, y := linkedSTPs("x.example:2024:link", "y.example:2024:link", "100-200")
	require.NoError(t, r.ReconcileSTPs(ctx, []*models.STP{x, y}))
	require.NoError(t, r.ReconcileSDPs(ctx))

	oldSDP, err := s.GetSDPByPair(ctx, x.ID, y.ID)
	require.NoError(t, err)
	require.True(t, oldSDP.Active)

	// Second pass: Y now links to Z instead, X loses its aliases.
	x2 := &models.STP{StpID: "x.example:2024:link", VlanRange: "100-200", Description: "x.example:2024:link", Active: true}
	y2, z2 := linkedSTPs("y.example:2024:link", "z.example:2024:link", "100-200")
	require.NoError(t, r.ReconcileSTPs(ctx, []*models.STP{x2, y2, z2}))
	require.NoError(t, r.ReconcileSDPs(ctx))

	// The old pair is soft-deleted even though Y itself is still active.
	old, err := s.GetSDP(ctx, oldSDP.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)

	yRow, err := s.GetSTPByStpID(ctx, "y.example:2024:link")
	require.NoError(t, err)
	zRow, err := s.GetSTPByStpID(ctx, "z.example:2024:link")
	require.NoError(t, err)
	fresh, err := s.GetSDPByPair(ctx, yRow.ID, zRow.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Active)
}
