package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type recordingProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (p *recordingProducer) ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return p.err
}

func TestKafkaSMSGateway_Send(t *testing.T) {
	producer := &recordingProducer{}
	gw := NewKafkaSMSGateway(producer, "sms-outbound")

	dispatch, err := gw.Send(context.Background(), "+447700900123", "code 1234")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if producer.topic != "sms-outbound" {
		t.Errorf("topic = %q, want sms-outbound", producer.topic)
	}
	if string(producer.key) != "+447700900123" {
		t.Errorf("key = %q", producer.key)
	}

	var msg outboundSMS
	if err := json.Unmarshal(producer.value, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Destination != "+447700900123" || msg.Body != "code 1234" {
		t.Errorf("payload = %+v", msg)
	}
	if producer.headers["message_id"] != msg.MessageID {
		t.Errorf("message_id header = %q, want %q", producer.headers["message_id"], msg.MessageID)
	}
	if dispatch.Provider != "kafka" {
		t.Errorf("Provider = %q, want kafka", dispatch.Provider)
	}
}

func TestKafkaSMSGateway_WriteFailureIsTransportFailure(t *testing.T) {
	cause := errors.New("broker down")
	gw := NewKafkaSMSGateway(&recordingProducer{err: cause}, "sms-outbound")

	_, err := gw.Send(context.Background(), "+15551234", "x")
	var sendErr *MessageSendError
	if !errors.As(err, &sendErr) || sendErr.Kind != TransportFailure {
		t.Fatalf("err = %v, want transport failure", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err does not wrap cause")
	}
}
