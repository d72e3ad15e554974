// Package outbox relays audit entries committed to the outbox table to Kafka.
//
// The audit store writes each entry and its outbox row in the mutation's
// transaction, so an entry is published only if the mutation committed.
// Delivery is at-least-once: rows are marked published after the broker acks,
// and a crash between the ack and the commit republishes the batch.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Message is one unpublished outbox row.
type Message struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}
