package inscriber

import (
	"context"
	"time"
)

// Record statuses, in pipeline order.
const (
	StatusCommitted = "committed" // commit broadcast, reveal pending
	StatusRevealed  = "revealed"  // reveal confirmed to target depth
)

// RecordEntry is a durable snapshot of one inscription's progress. The
// pipeline persists nothing itself; entries go to whatever Recorder the
// caller plugs in.
type RecordEntry struct {
	InscriptionID string    `json:"inscription_id,omitempty"`
	CommitTxID    string    `json:"commit_txid"`
	RevealTxID    string    `json:"reveal_txid,omitempty"`
	ContentType   string    `json:"content_type"`
	ContentSize   int       `json:"content_size"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Recorder receives progress entries after the commit broadcast and after
// the reveal confirms. Implementations must tolerate being called twice for
// the same inscription with advancing status.
type Recorder interface {
	Record(ctx context.Context, entry *RecordEntry) error
}
