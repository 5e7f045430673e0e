package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	"github.com/Checker-Finance/zoho-bulk/pkg/logger"
	"github.com/Checker-Finance/zoho-bulk/pkg/model"
)

// Subjects for the events this tool emits. The trailing token names the
// source system so consumers of a shared stream can filter by venue.
const (
	SubjectJobCreated      = "evt.bulk.job_created.v1.ZOHO"
	SubjectJobStateChanged = "evt.bulk.job_state_changed.v1.ZOHO"
	SubjectJobCompleted    = "evt.bulk.job_completed.v1.ZOHO"
	SubjectJobFailed       = "evt.bulk.job_failed.v1.ZOHO"
	SubjectRecordsDeleted  = "evt.bulk.records_deleted.v1.ZOHO"
)

const envelopeVersion = "1.0.0"

// jsPublisher is the slice of nats.JetStreamContext the publisher uses.
type jsPublisher interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and publishes canonical event envelopes.
type Publisher struct {
	nc      *nats.Conn
	js      jsPublisher
	service string
}

// New creates a Publisher with JetStream enabled.
func New(nc *nats.Conn, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		service: service,
	}, nil
}

// Publish wraps payload in a canonical envelope and publishes it. The event
// type is derived from the subject.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	env := &model.Envelope{
		ID:        uuid.New(),
		EventType: eventTypeFromSubject(subject),
		Source:    p.service,
		Version:   envelopeVersion,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}
	return p.PublishEnvelope(ctx, subject, env)
}

// PublishEnvelope serializes and publishes a prebuilt envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{env.EventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// eventTypeFromSubject maps "evt.bulk.job_created.v1.ZOHO" to
// "bulk.job_created". Unrecognised subjects pass through unchanged.
func eventTypeFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) >= 4 && parts[0] == "evt" {
		return strings.Join(parts[1:len(parts)-2], ".")
	}
	return subject
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
