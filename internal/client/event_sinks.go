package client

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"phone-auth-service/internal/models"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// KafkaEventSink publishes auth events keyed by session so one flow's
// events stay ordered within a partition.
type KafkaEventSink struct {
	producer MessageProducer
	topic    string
}

func NewKafkaEventSink(producer MessageProducer, topic string) *KafkaEventSink {
	return &KafkaEventSink{producer: producer, topic: topic}
}

func (s *KafkaEventSink) Name() string { return "kafka" }

func (s *KafkaEventSink) Record(ctx context.Context, event *models.AuthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode auth event: %w", err)
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(event.SessionID), payload, map[string]string{
		"event_type": string(event.Type),
	})
}

// ClickHouseEventSink appends auth events to an analytics table.
type ClickHouseEventSink struct {
	client *ClickHouseClient
	table  string
}

func NewClickHouseEventSink(client *ClickHouseClient, table string) (*ClickHouseEventSink, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}
	return &ClickHouseEventSink{client: client, table: table}, nil
}

func (s *ClickHouseEventSink) Name() string { return "clickhouse" }

func (s *ClickHouseEventSink) EnsureTable(ctx context.Context) error {
	return s.client.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		event_id String,
		event_type LowCardinality(String),
		session_id String,
		identity String,
		account_id String,
		error LowCardinality(String),
		detail String,
		created_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (event_type, created_at)`, s.table))
}

func (s *ClickHouseEventSink) Record(ctx context.Context, event *models.AuthEvent) error {
	return s.client.BatchInsert(ctx, "INSERT INTO "+s.table, [][]interface{}{{
		event.ID,
		string(event.Type),
		event.SessionID,
		event.Identity,
		event.AccountID,
		event.Error,
		event.Detail,
		event.CreatedAt,
	}})
}

// ESEventSink indexes security-relevant events for investigation: failures
// and registrations. Routine OTP_SENT and LOGIN events are skipped.
type ESEventSink struct {
	client *ESClient
	index  string
}

func NewESEventSink(client *ESClient, index string) *ESEventSink {
	return &ESEventSink{client: client, index: index}
}

func (s *ESEventSink) Name() string { return "elasticsearch" }

func (s *ESEventSink) Record(ctx context.Context, event *models.AuthEvent) error {
	if event.Type != models.EventLoginError && event.Type != models.EventRegister {
		return nil
	}
	return s.client.IndexDocument(ctx, s.index, event.ID, event)
}
