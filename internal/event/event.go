package event

import "time"

// Kind discriminator for vault events
type Kind int32

const (
	KindUnknown Kind = iota
	KindDeposited
	KindWithdrawn
	KindLocked
	KindUnlocked
	KindTransferred
)

// Event is the interface all vault events implement. Events are emitted
// synchronously with the committing ledger operation and consumed by
// observability/auditing collaborators.
type Event interface {
	// IdempotencyKey returns the stable dedup key for stream consumers.
	IdempotencyKey() string

	// Kind returns the discriminator
	Kind() Kind

	// Owner returns the primary owner the event concerns.
	Owner() string

	// OccurredAt returns the commit timestamp.
	OccurredAt() time.Time
}

func (k Kind) String() string {
	switch k {
	case KindDeposited:
		return "Deposited"
	case KindWithdrawn:
		return "Withdrawn"
	case KindLocked:
		return "Locked"
	case KindUnlocked:
		return "Unlocked"
	case KindTransferred:
		return "Transferred"
	default:
		return "Unknown"
	}
}
