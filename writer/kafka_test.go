package writer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "optionsflow/config"
	"optionsflow/models"
)

type fakeMessageWriter struct {
	batches [][]kafka.Message
	failAt  int
	closed  bool
}

func (f *fakeMessageWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.failAt > 0 && len(f.batches)+1 == f.failAt {
		return errors.New("broker unavailable")
	}
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherSendsEveryGroup(t *testing.T) {
	report := testReport(t)
	fake := &fakeMessageWriter{}
	p := newKafkaPublisher(fake, appconfig.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "options-summary", BatchSize: 10})

	sent, err := p.Publish(context.Background(), report)
	require.NoError(t, err)

	total := len(report.Summary.ByMoneyness) + len(report.Summary.ByBucket)
	assert.Equal(t, total, sent)
	assert.Len(t, fake.batches, (total+9)/10)

	first := fake.batches[0][0]
	assert.Equal(t, report.RunID, string(first.Key))

	var msg SummaryMessage
	require.NoError(t, json.Unmarshal(first.Value, &msg))
	assert.Equal(t, GroupingMoneyness, msg.Grouping)
	assert.Equal(t, report.Summary.ByMoneyness[0].Group, msg.Group)
	assert.Contains(t, msg.Metrics, models.MetricImpliedVolatility)

	last := fake.batches[len(fake.batches)-1]
	var tail SummaryMessage
	require.NoError(t, json.Unmarshal(last[len(last)-1].Value, &tail))
	assert.Equal(t, GroupingDTE, tail.Grouping)

	require.NoError(t, p.Close())
	assert.True(t, fake.closed)
}

func TestKafkaPublisherReportsPartialFailure(t *testing.T) {
	fake := &fakeMessageWriter{failAt: 2}
	p := newKafkaPublisher(fake, appconfig.KafkaConfig{Topic: "options-summary", BatchSize: 5})

	sent, err := p.Publish(context.Background(), testReport(t))
	require.Error(t, err)
	assert.Equal(t, 5, sent)
	assert.Contains(t, err.Error(), "options-summary")
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(appconfig.KafkaConfig{Topic: "options-summary"})
	assert.Error(t, err)
}
