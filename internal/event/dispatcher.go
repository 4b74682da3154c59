package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/client"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

const publishTimeout = 10 * time.Second

// Dispatcher publishes domain events to Kafka. Publishing is fire-and-forget
// from the caller's point of view: delivery happens on a background goroutine
// and failures are logged, never surfaced to the request path.
type Dispatcher struct {
	producer *client.KafkaProducer
	topic    string
	retries  int
}

// NewDispatcher wires a dispatcher to an existing producer. A nil producer
// yields a dispatcher that drops everything, which keeps call sites free of
// enabled checks.
func NewDispatcher(producer *client.KafkaProducer, topic string, retries int) *Dispatcher {
	if retries < 1 {
		retries = 1
	}
	return &Dispatcher{producer: producer, topic: topic, retries: retries}
}

// Dispatch serializes the event and hands it off. Returns immediately.
func (d *Dispatcher) Dispatch(e Event) {
	if d == nil || d.producer == nil {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		util.Error("failed to marshal event",
			util.String("event_type", string(e.Type)),
			util.ErrorField(err),
		)
		return
	}

	go d.deliver(e, payload)
}

func (d *Dispatcher) deliver(e Event, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	headers := map[string]string{"event_type": string(e.Type)}
	key := []byte(e.UserID.String())

	var err error
	for attempt := 1; attempt <= d.retries; attempt++ {
		if err = d.producer.ProduceMessage(ctx, d.topic, key, payload, headers); err == nil {
			return
		}
		if attempt < d.retries {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}

	util.Error("failed to publish event after retries",
		util.String("event_type", string(e.Type)),
		util.String("event_id", e.ID.String()),
		util.Int("attempts", d.retries),
		util.ErrorField(err),
	)
}
