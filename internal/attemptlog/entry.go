package attemptlog

import (
	"time"

	"github.com/mixaill76/agent_failover/internal/failover"
	"github.com/mixaill76/agent_failover/internal/logger"
)

// maxErrorLength bounds the stored error text.
const maxErrorLength = 2000

// Entry is one persisted model attempt.
type Entry struct {
	CallID     string
	Attempt    int
	ModelID    string
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}

func newEntry(callID string, attempt int, a failover.ModelAttempt, now time.Time) Entry {
	return Entry{
		CallID:     callID,
		Attempt:    attempt,
		ModelID:    a.ModelID,
		Error:      logger.TruncateErrorMessage(a.Error, maxErrorLength),
		DurationMS: a.Duration.Milliseconds(),
		CreatedAt:  now,
	}
}

// Stats are the recorder's lifetime counters.
type Stats struct {
	QueueLen  int
	QueueCap  int
	Queued    uint64
	Written   uint64
	Dropped   uint64
	Errors    uint64
	BatchesOK uint64
}
