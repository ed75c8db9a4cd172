package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"phone-auth-service/internal/models"
)

const kafkaSMSProvider = "kafka"

type outboundSMS struct {
	MessageID   string    `json:"message_id"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	RequestedAt time.Time `json:"requested_at"`
}

// KafkaSMSGateway hands messages to a relay topic. A message counts as sent
// once the broker acknowledges it.
type KafkaSMSGateway struct {
	producer MessageProducer
	topic    string
}

func NewKafkaSMSGateway(producer MessageProducer, topic string) *KafkaSMSGateway {
	return &KafkaSMSGateway{producer: producer, topic: topic}
}

func (g *KafkaSMSGateway) Send(ctx context.Context, destination, body string) (*models.SMSDispatch, error) {
	started := time.Now()
	dispatch := &models.SMSDispatch{
		Destination: destination,
		Provider:    kafkaSMSProvider,
		SentAt:      started.UTC(),
	}

	msg := outboundSMS{
		MessageID:   uuid.NewString(),
		Destination: destination,
		Body:        body,
		RequestedAt: started.UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		dispatch.Outcome = models.DispatchTransportFailure
		return dispatch, &MessageSendError{Kind: TransportFailure, Detail: "encode message", Cause: err}
	}

	err = g.producer.ProduceMessage(ctx, g.topic, []byte(destination), payload, map[string]string{
		"message_id":   msg.MessageID,
		"content_type": "application/json",
	})
	dispatch.Duration = time.Since(started)
	if err != nil {
		dispatch.Outcome = models.DispatchTransportFailure
		return dispatch, &MessageSendError{Kind: TransportFailure, Cause: err}
	}

	dispatch.Outcome = models.DispatchSent
	return dispatch, nil
}
