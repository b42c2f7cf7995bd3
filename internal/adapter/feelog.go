package adapter

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/pkg/logging"
)

// FeeLegFailure records one failed admin-fee transfer. The main
// transaction it followed was already accepted; the failure is kept
// observable instead of being silently dropped.
type FeeLegFailure struct {
	ID     string    `json:"id"`
	Chain  chain.ID  `json:"chain"`
	TxHash string    `json:"txHash"` // hash of the main transfer
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// FeeLegLog collects admin-fee leg failures across adapters.
type FeeLegLog struct {
	mu       sync.RWMutex
	failures []FeeLegFailure
	log      *logging.Logger
}

// NewFeeLegLog creates an empty failure log.
func NewFeeLegLog(log *logging.Logger) *FeeLegLog {
	return &FeeLegLog{log: log.Component("feelog")}
}

// Record registers a fee-leg failure and returns its generated ID.
func (l *FeeLegLog) Record(id chain.ID, txHash string, err error) string {
	failure := FeeLegFailure{
		ID:     uuid.NewString(),
		Chain:  id,
		TxHash: txHash,
		Reason: err.Error(),
		At:     time.Now(),
	}
	l.mu.Lock()
	l.failures = append(l.failures, failure)
	l.mu.Unlock()

	l.log.Warn("admin fee leg failed",
		"id", failure.ID, "chain", id, "mainTx", txHash, "err", err)
	return failure.ID
}

// Failures returns a copy of the recorded failures, optionally
// filtered by chain ("" returns all).
func (l *FeeLegLog) Failures(id chain.ID) []FeeLegFailure {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]FeeLegFailure, 0, len(l.failures))
	for _, f := range l.failures {
		if id == "" || f.Chain == id {
			out = append(out, f)
		}
	}
	return out
}
