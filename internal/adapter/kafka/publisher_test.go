package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/paulmach/orb"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

type recordingWriter struct {
	msgs []kafkago.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

var publishedAt = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

func square(minX, minY, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}}
}

func testPublisher(w messageWriter) *Publisher {
	return &Publisher{
		writer: w,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return publishedAt },
	}
}

func TestSerializeToMessage(t *testing.T) {
	c := domain.PrimaryCluster{
		ID:           3,
		Boundary:     square(-85.01, 37.99, 0.02),
		NumPoints:    6,
		Start:        time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 1, 5, 19, 30, 0, 0, time.UTC),
		MaxMagnitude: 2.25,
		Severity:     "severe",
		PlaceName:    "Louisville, Kentucky",
	}

	msg, err := serializeToMessage("KY_20240101_20240301", c, []SubClusterCount{{ID: 0, NumMembers: 12}}, publishedAt)
	require.NoError(t, err)

	assert.Equal(t, []byte("KY_20240101_20240301/3"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "partition", msg.Headers[0].Key)
	assert.Equal(t, []byte("KY_20240101_20240301"), msg.Headers[0].Value)
	assert.Equal(t, "severity", msg.Headers[1].Key)
	assert.Equal(t, []byte("severe"), msg.Headers[1].Value)
	assert.Equal(t, "published_at", msg.Headers[2].Key)
	assert.Equal(t, []byte("2024-03-02T12:00:00Z"), msg.Headers[2].Value)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "KY_20240101_20240301", got["partition"])
	assert.InDelta(t, 3, got["cluster_id"], 0)
	assert.Equal(t, "Louisville, Kentucky", got["place_name"])
	assert.Equal(t, "2024-01-05T18:00:00Z", got["start"])
	centroid := got["centroid"].([]any)
	assert.InDelta(t, -85.0, centroid[0], 1e-9)
	assert.InDelta(t, 38.0, centroid[1], 1e-9)
	boundary := got["boundary"].(map[string]any)
	assert.Equal(t, "Polygon", boundary["type"])
	assert.Len(t, got["sub_clusters"], 1)
}

func TestSerializeToMessage_NoTimesNoSubClusters(t *testing.T) {
	c := domain.PrimaryCluster{ID: 0, Boundary: square(0, 0, 1), NumPoints: 5}

	msg, err := serializeToMessage("GA_20240101_20240301", c, nil, publishedAt)
	require.NoError(t, err)

	assert.NotContains(t, string(msg.Value), `"start"`)
	assert.NotContains(t, string(msg.Value), `"place_name"`)
	assert.Contains(t, string(msg.Value), `"sub_clusters":[]`)
}

func TestPublishClusters(t *testing.T) {
	w := &recordingWriter{}
	p := testPublisher(w)

	primary := []domain.PrimaryCluster{
		{ID: 0, Boundary: square(-85, 38, 0.01), NumPoints: 6},
		{ID: 1, Boundary: square(-84, 38, 0.01), NumPoints: 7},
	}
	secondary := []domain.SecondaryCluster{
		{PrimaryID: 0, ID: 0, NumMembers: 10},
		{PrimaryID: 0, ID: 1, NumMembers: 11},
	}

	require.NoError(t, p.PublishClusters(context.Background(), "GA_20240101_20240301", primary, secondary))
	require.Len(t, w.msgs, 2)

	var first, second ClusterSummary
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &first))
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &second))
	assert.Equal(t, []SubClusterCount{{ID: 0, NumMembers: 10}, {ID: 1, NumMembers: 11}}, first.SubClusters)
	assert.Empty(t, second.SubClusters)
}

func TestPublishClusters_Empty(t *testing.T) {
	w := &recordingWriter{err: errors.New("should not be called")}
	require.NoError(t, testPublisher(w).PublishClusters(context.Background(), "GA_20240101_20240301", nil, nil))
}

func TestPublishClusters_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	err := testPublisher(w).PublishClusters(context.Background(), "GA_20240101_20240301",
		[]domain.PrimaryCluster{{ID: 0, Boundary: square(0, 0, 1)}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}
