package message

import (
	"time"
)

// ExtendedEnvelope is an envelope plus its receipt metadata.
type ExtendedEnvelope struct {
	*Envelope

	ReceivedAt   time.Time
	ProcessedAt  *time.Time
	ReceivedFrom string
}

// NewExtendedEnvelope tags env as received now from address.
func NewExtendedEnvelope(env *Envelope, address string) *ExtendedEnvelope {
	return &ExtendedEnvelope{
		Envelope:     env,
		ReceivedAt:   time.Now(),
		ReceivedFrom: address,
	}
}

// IsProcessed reports whether the message was successfully handled.
func (e *ExtendedEnvelope) IsProcessed() bool {
	return e.ProcessedAt != nil
}

// MarkProcessed stamps the processing time.
func (e *ExtendedEnvelope) MarkProcessed(at time.Time) {
	e.ProcessedAt = &at
}
