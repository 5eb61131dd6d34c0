package cluster

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/geometry"
)

func observations(prefix string, pts []orb.Point) []domain.PointObservation {
	out := make([]domain.PointObservation, len(pts))
	for i, p := range pts {
		out[i] = domain.PointObservation{ID: fmt.Sprintf("%s-%d", prefix, i), Location: p}
	}
	return out
}

func threeGroupsTwoSingletons() []domain.PointObservation {
	var obs []domain.PointObservation
	obs = append(obs, observations("a", group(orb.Point{-85, 38}))...)
	obs = append(obs, observations("lone1", []orb.Point{{-80, 30}})...)
	obs = append(obs, observations("b", group(orb.Point{-84, 37}))...)
	obs = append(obs, observations("c", group(orb.Point{-83, 36}))...)
	obs = append(obs, observations("lone2", []orb.Point{{-70, 40}})...)
	return obs
}

func TestClusterPoints_ThreeGroups(t *testing.T) {
	obs := threeGroupsTwoSingletons()

	clusters, err := ClusterPoints(obs, Params{Eps: 0.02, MinSamples: 5}, "GA_20240101_20240301")
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	for i, c := range clusters {
		assert.Equal(t, i, c.ID)
		assert.Equal(t, 6, c.NumPoints)
		assert.Equal(t, "GA_20240101_20240301", c.Partition)
		assert.True(t, geometry.Valid(c.Boundary))
	}
	assert.Equal(t, 2, NoiseCount(len(obs), clusters))

	// noise points fall outside every hull
	for _, c := range clusters {
		assert.False(t, planar.PolygonContains(c.Boundary, orb.Point{-80, 30}))
		assert.False(t, planar.PolygonContains(c.Boundary, orb.Point{-70, 40}))
	}
}

func TestClusterPoints_Attributes(t *testing.T) {
	base := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	obs := observations("a", group(orb.Point{-85, 38}))
	for i := range obs {
		obs[i].Start = base.Add(time.Duration(i) * time.Minute)
		obs[i].End = obs[i].Start
		obs[i].Magnitude = 0.5 * float64(i)
	}
	obs[2].Start = time.Time{}
	obs[2].End = base.Add(-time.Hour)
	obs[3].Start, obs[3].End = time.Time{}, time.Time{}

	clusters, err := ClusterPoints(obs, Params{Eps: 0.02, MinSamples: 5}, "p")
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, base.Add(-time.Hour), c.Start)
	assert.Equal(t, base.Add(5*time.Minute), c.End)
	assert.Equal(t, 2.5, c.MaxMagnitude)
	assert.Equal(t, "extreme", c.Severity)
}

func TestClusterPoints_NoTimesLeavesRangeEmpty(t *testing.T) {
	clusters, err := ClusterPoints(observations("a", group(orb.Point{0, 0})), Params{Eps: 0.02, MinSamples: 5}, "p")
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.True(t, clusters[0].Start.IsZero())
	assert.True(t, clusters[0].End.IsZero())
	assert.Zero(t, clusters[0].MaxMagnitude)
}

func TestClusterPoints_EmptyInput(t *testing.T) {
	_, err := ClusterPoints(nil, Params{Eps: 0.1, MinSamples: 5}, "p")
	require.ErrorIs(t, err, ErrNoInput)
}

func TestClusterPoints_InvalidParams(t *testing.T) {
	_, err := ClusterPoints(observations("a", []orb.Point{{0, 0}}), Params{Eps: 0.1}, "p")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoInput)
}

func TestClusterPoints_MinSamplesOneHasNoNoise(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	pts := make([]orb.Point, 100)
	for i := range pts {
		pts[i] = orb.Point{-85 + r.Float64(), 38 + r.Float64()}
	}
	obs := observations("p", pts)

	clusters, err := ClusterPoints(obs, Params{Eps: 10, MinSamples: 1}, "p")
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 100, clusters[0].NumPoints)
	assert.Zero(t, NoiseCount(len(obs), clusters))
}

func TestClusterPoints_CountConservation(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	for trial := 0; trial < 20; trial++ {
		pts := make([]orb.Point, 50+r.IntN(100))
		for i := range pts {
			pts[i] = orb.Point{r.Float64(), r.Float64()}
		}
		obs := observations("p", pts)
		params := Params{Eps: 0.02 + 0.1*r.Float64(), MinSamples: 1 + r.IntN(6)}

		clusters, err := ClusterPoints(obs, params, "p")
		require.NoError(t, err)

		labels, err := Labels(pts, params)
		require.NoError(t, err)
		noise := 0
		for _, l := range labels {
			if l == Noise {
				noise++
			}
		}
		assert.Equal(t, noise, NoiseCount(len(obs), clusters))
		for _, c := range clusters {
			assert.Greater(t, geometry.Area(c.Boundary), 0.0)
		}
	}
}

// membership returns the clusters as sorted sets of observation IDs.
func membership(obs []domain.PointObservation, labels []int) [][]string {
	byLabel := map[int][]string{}
	for i, l := range labels {
		if l != Noise {
			byLabel[l] = append(byLabel[l], obs[i].ID)
		}
	}
	var sets [][]string
	for _, ids := range byLabel {
		slices.Sort(ids)
		sets = append(sets, ids)
	}
	slices.SortFunc(sets, func(a, b []string) int { return slices.Compare(a, b) })
	return sets
}

func TestLabels_StableAcrossRunsAndOrder(t *testing.T) {
	obs := threeGroupsTwoSingletons()
	coords := make([]orb.Point, len(obs))
	for i, o := range obs {
		coords[i] = o.Location
	}
	params := Params{Eps: 0.02, MinSamples: 5}

	first, err := Labels(coords, params)
	require.NoError(t, err)
	second, err := Labels(coords, params)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	r := rand.New(rand.NewPCG(9, 9))
	perm := r.Perm(len(obs))
	shuffled := make([]domain.PointObservation, len(obs))
	shuffledCoords := make([]orb.Point, len(obs))
	for i, j := range perm {
		shuffled[i] = obs[j]
		shuffledCoords[i] = obs[j].Location
	}
	third, err := Labels(shuffledCoords, params)
	require.NoError(t, err)

	assert.Equal(t, membership(obs, first), membership(shuffled, third))
}
