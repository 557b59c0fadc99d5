package inscriber

import "time"

// Lifecycle event topics published on the configured bus.
const (
	TopicStarted   = "inscription.started"
	TopicBroadcast = "inscription.broadcast"
	TopicConfirmed = "inscription.confirmed"
	TopicFailed    = "inscription.failed"
)

// Event is the payload published on every lifecycle topic.
type Event struct {
	InscriptionID string    `json:"inscription_id,omitempty"`
	CommitTxID    string    `json:"commit_txid,omitempty"`
	RevealTxID    string    `json:"reveal_txid,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	Phase         Phase     `json:"phase,omitempty"`
	Code          string    `json:"code,omitempty"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
}

// publish emits an event when a bus is configured. Event delivery never
// blocks or fails the pipeline.
func (i *Inscriber) publish(topic string, ev Event) {
	if i.bus == nil {
		return
	}
	ev.At = time.Now().UTC()
	i.bus.Publish(topic, ev)
}
