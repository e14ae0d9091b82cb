package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// MessageWriter is the part of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SummaryMessage is one summary group as published to Kafka.
type SummaryMessage struct {
	RunID         string                         `json:"run_id"`
	SnapshotDates []string                       `json:"snapshot_dates"`
	Grouping      string                         `json:"grouping"`
	Group         string                         `json:"group"`
	Subgroup      string                         `json:"subgroup"`
	Records       int                            `json:"records"`
	Metrics       map[models.Metric]models.Stats `json:"metrics"`
}

// KafkaPublisher sends every summary group of a report as one message
// keyed by run id.
type KafkaPublisher struct {
	writer    MessageWriter
	topic     string
	batchSize int
	log       *logger.Log
}

func NewKafkaPublisher(cfg appconfig.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	return newKafkaPublisher(w, cfg), nil
}

func newKafkaPublisher(w MessageWriter, cfg appconfig.KafkaConfig) *KafkaPublisher {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	log := logger.GetLogger()
	log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("kafka publisher initialized")
	return &KafkaPublisher{writer: w, topic: cfg.Topic, batchSize: batch, log: log}
}

// summaryMessages flattens both groupings in output order.
func summaryMessages(report *models.Report) ([]kafka.Message, error) {
	groupings := []struct {
		name   string
		groups []models.GroupSummary
	}{
		{GroupingMoneyness, report.Summary.ByMoneyness},
		{GroupingDTE, report.Summary.ByBucket},
	}

	var msgs []kafka.Message
	for _, g := range groupings {
		for _, group := range g.groups {
			value, err := json.Marshal(SummaryMessage{
				RunID:         report.RunID,
				SnapshotDates: report.SnapshotDates,
				Grouping:      g.name,
				Group:         group.Group,
				Subgroup:      group.Subgroup,
				Records:       group.Records,
				Metrics:       group.Metrics,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal summary group: %w", err)
			}
			msgs = append(msgs, kafka.Message{
				Key:   []byte(report.RunID),
				Value: value,
				Headers: []kafka.Header{
					{Key: "grouping", Value: []byte(g.name)},
					{Key: "run_id", Value: []byte(report.RunID)},
				},
			})
		}
	}
	return msgs, nil
}

// Publish writes the report summary in batches and returns the number of
// messages sent.
func (p *KafkaPublisher) Publish(ctx context.Context, report *models.Report) (int, error) {
	start := time.Now()
	log := p.log.WithComponent("kafka_publisher").WithRun(report.RunID).WithFields(logger.Fields{"topic": p.topic})

	msgs, err := summaryMessages(report)
	if err != nil {
		return 0, err
	}

	sent := 0
	for lo := 0; lo < len(msgs); lo += p.batchSize {
		hi := lo + p.batchSize
		if hi > len(msgs) {
			hi = len(msgs)
		}
		if err := p.writer.WriteMessages(ctx, msgs[lo:hi]...); err != nil {
			log.WithError(err).WithFields(logger.Fields{"sent": sent}).Error("failed to publish summary")
			return sent, fmt.Errorf("failed to publish summary to %s: %w", p.topic, err)
		}
		sent = hi
	}

	logger.LogPerformanceEntry(log, "kafka_publisher", "publish", time.Since(start), logger.Fields{"messages": sent})
	logger.LogDataFlowEntry(log, "aggregator", "kafka", sent, "summary_groups")
	return sent, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
