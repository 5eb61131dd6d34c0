package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/paulheiniger/storm-event-leads/internal/config"
	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/geometry"
)

// Publisher produces one cluster summary message per primary cluster.
// It implements pipeline.Publisher.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewPublisher creates a Kafka producer for the configured cluster topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaClusterTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger, now: time.Now}
}

// ClusterSummary is the message body published for a primary cluster.
type ClusterSummary struct {
	Partition    string            `json:"partition"`
	ClusterID    int               `json:"cluster_id"`
	PlaceName    string            `json:"place_name,omitempty"`
	NumPoints    int               `json:"num_points"`
	MaxMagnitude float64           `json:"max_magnitude"`
	Severity     string            `json:"severity,omitempty"`
	Start        *time.Time        `json:"start,omitempty"`
	End          *time.Time        `json:"end,omitempty"`
	Centroid     [2]float64        `json:"centroid"`
	Boundary     *geojson.Geometry `json:"boundary"`
	SubClusters  []SubClusterCount `json:"sub_clusters"`
}

// SubClusterCount summarizes one secondary cluster of the primary.
type SubClusterCount struct {
	ID         int `json:"id"`
	NumMembers int `json:"num_members"`
}

// PublishClusters writes all summaries of a partition in a single
// WriteMessages call. Messages are keyed by partition and cluster ID.
func (p *Publisher) PublishClusters(ctx context.Context, partition string, primary []domain.PrimaryCluster, secondary []domain.SecondaryCluster) error {
	if len(primary) == 0 {
		return nil
	}

	subs := make(map[int][]SubClusterCount)
	for _, s := range secondary {
		subs[s.PrimaryID] = append(subs[s.PrimaryID], SubClusterCount{ID: s.ID, NumMembers: s.NumMembers})
	}

	publishedAt := p.now().UTC()
	msgs := make([]kafkago.Message, len(primary))
	for i, c := range primary {
		msg, err := serializeToMessage(partition, c, subs[c.ID], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d cluster summaries: %w", len(msgs), err)
	}
	p.logger.Info("published cluster summaries", "partition", partition, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a primary cluster summary into a Kafka message.
func serializeToMessage(partition string, c domain.PrimaryCluster, subs []SubClusterCount, publishedAt time.Time) (kafkago.Message, error) {
	centroid := geometry.Centroid(c.Boundary)
	summary := ClusterSummary{
		Partition:    partition,
		ClusterID:    c.ID,
		PlaceName:    c.PlaceName,
		NumPoints:    c.NumPoints,
		MaxMagnitude: c.MaxMagnitude,
		Severity:     c.Severity,
		Centroid:     [2]float64{centroid.Lon(), centroid.Lat()},
		Boundary:     geojson.NewGeometry(c.Boundary),
		SubClusters:  subs,
	}
	if summary.SubClusters == nil {
		summary.SubClusters = []SubClusterCount{}
	}
	if !c.Start.IsZero() {
		start := c.Start.UTC()
		summary.Start = &start
	}
	if !c.End.IsZero() {
		end := c.End.UTC()
		summary.End = &end
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cluster %d: %w", c.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(partition + "/" + strconv.Itoa(c.ID)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "partition", Value: []byte(partition)},
			{Key: "severity", Value: []byte(c.Severity)},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
