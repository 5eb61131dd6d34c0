package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/geometry"
)

func obs(id string, lon, lat float64) domain.PointObservation {
	return domain.PointObservation{ID: id, Location: orb.Point{lon, lat}}
}

func TestUnionViewReadsLiveSources(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.WriteObservations(ctx, "a", []domain.PointObservation{obs("1", 0, 0)}, domain.WriteReplaceStaging))
	require.NoError(t, s.WriteObservations(ctx, "b", []domain.PointObservation{obs("2", 1, 1), obs("3", 2, 2)}, domain.WriteReplaceStaging))
	require.NoError(t, s.CreateUnionView(ctx, "v", []string{"a", "b"}))

	got, err := s.LoadObservations(ctx, "v")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b"}, s.ViewSources("v"))

	require.Error(t, s.CreateUnionView(ctx, "w", []string{"a", "missing"}))
	require.Error(t, s.CreateUnionView(ctx, "w", nil))
}

func TestWriteModes(t *testing.T) {
	ctx := context.Background()
	s := New()

	c0 := []domain.PrimaryCluster{{ID: 0}}
	c1 := []domain.PrimaryCluster{{ID: 1}}

	require.NoError(t, s.WritePrimaryClusters(ctx, "p", c0, domain.WriteReplaceStaging))
	require.NoError(t, s.WritePrimaryClusters(ctx, "p", c1, domain.WriteAppend))
	got, err := s.LoadPrimaryClusters(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.WritePrimaryClusters(ctx, "p", c1, domain.WriteReplaceDrop))
	got, err = s.LoadPrimaryClusters(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, c1, got)
	assert.Equal(t, 3, s.Writes())
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")

	require.NoError(t, s.WriteObservations(ctx, "a", []domain.PointObservation{obs("1", 0, 0)}, domain.WriteReplaceStaging))
	s.FailWrite("a", boom)
	err := s.WriteObservations(ctx, "a", nil, domain.WriteReplaceStaging)
	require.ErrorIs(t, err, boom)

	// the earlier contents are untouched
	got, err := s.LoadObservations(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	s.DropWrite("b")
	require.NoError(t, s.WriteObservations(ctx, "b", nil, domain.WriteReplaceStaging))
	ok, err := s.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAliases(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.Error(t, s.CreateAlias(ctx, "alias", "missing"))
	require.NoError(t, s.WritePrimaryClusters(ctx, "p1", []domain.PrimaryCluster{{ID: 4}}, domain.WriteReplaceStaging))
	require.NoError(t, s.CreateAlias(ctx, "alias", "p1"))

	target, err := s.ResolveAlias(ctx, "alias")
	require.NoError(t, err)
	assert.Equal(t, "p1", target)

	ok, err := s.Exists(ctx, "alias")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.LoadPrimaryClusters(ctx, "alias")
	require.NoError(t, err)
	assert.Equal(t, 4, got[0].ID)

	target, err = s.ResolveAlias(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, target)
}

func TestQueryEntities(t *testing.T) {
	s := New()
	s.SeedEntities(
		domain.SecondaryEntity{ID: "in", Location: orb.Point{-85, 38}},
		domain.SecondaryEntity{ID: "out", Location: orb.Point{-84, 38}},
	)

	got, err := s.QueryEntities(context.Background(), geometry.Circle(orb.Point{-85, 38}, 0.1, 32))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].ID)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, st := range []domain.StepStatus{domain.StatusOK, domain.StatusSkipped, domain.StatusFail} {
		require.NoError(t, s.Append(ctx, domain.RunLogEntry{Partition: "GA", Status: st}))
	}
	require.NoError(t, s.Append(ctx, domain.RunLogEntry{Partition: "OH", Status: domain.StatusOK}))

	got, err := s.History(ctx, "GA", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.StatusFail, got[0].Status)
	assert.Equal(t, domain.StatusSkipped, got[1].Status)

	all, err := s.History(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
