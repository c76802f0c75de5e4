package event

import (
	"time"

	"github.com/google/uuid"
)

// Deposited is emitted after a deposit commits.
type Deposited struct {
	EventID   uuid.UUID `json:"event_id"`
	Account   string    `json:"owner"`
	Amount    uint64    `json:"amount"`
	NewTotal  uint64    `json:"new_total"`
	Timestamp time.Time `json:"ts"`
}

func (e *Deposited) IdempotencyKey() string { return e.EventID.String() }
func (e *Deposited) Kind() Kind             { return KindDeposited }
func (e *Deposited) Owner() string          { return e.Account }
func (e *Deposited) OccurredAt() time.Time  { return e.Timestamp }

// Withdrawn is emitted after a withdrawal commits.
type Withdrawn struct {
	EventID   uuid.UUID `json:"event_id"`
	Account   string    `json:"owner"`
	Amount    uint64    `json:"amount"`
	NewTotal  uint64    `json:"new_total"`
	Timestamp time.Time `json:"ts"`
}

func (e *Withdrawn) IdempotencyKey() string { return e.EventID.String() }
func (e *Withdrawn) Kind() Kind             { return KindWithdrawn }
func (e *Withdrawn) Owner() string          { return e.Account }
func (e *Withdrawn) OccurredAt() time.Time  { return e.Timestamp }

// Locked is emitted when an authorized caller locks collateral.
type Locked struct {
	EventID   uuid.UUID `json:"event_id"`
	Caller    string    `json:"caller"`
	Account   string    `json:"owner"`
	Amount    uint64    `json:"amount"`
	NewLocked uint64    `json:"new_locked"`
	Timestamp time.Time `json:"ts"`
}

func (e *Locked) IdempotencyKey() string { return e.EventID.String() }
func (e *Locked) Kind() Kind             { return KindLocked }
func (e *Locked) Owner() string          { return e.Account }
func (e *Locked) OccurredAt() time.Time  { return e.Timestamp }

// Unlocked is emitted when an authorized caller releases locked collateral.
type Unlocked struct {
	EventID   uuid.UUID `json:"event_id"`
	Caller    string    `json:"caller"`
	Account   string    `json:"owner"`
	Amount    uint64    `json:"amount"`
	NewLocked uint64    `json:"new_locked"`
	Timestamp time.Time `json:"ts"`
}

func (e *Unlocked) IdempotencyKey() string { return e.EventID.String() }
func (e *Unlocked) Kind() Kind             { return KindUnlocked }
func (e *Unlocked) Owner() string          { return e.Account }
func (e *Unlocked) OccurredAt() time.Time  { return e.Timestamp }

// Transferred is emitted when collateral moves between two vaults.
// The sum of the two vaults' totals is unchanged by the operation.
type Transferred struct {
	EventID   uuid.UUID `json:"event_id"`
	Caller    string    `json:"caller"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    uint64    `json:"amount"`
	Timestamp time.Time `json:"ts"`
}

func (e *Transferred) IdempotencyKey() string { return e.EventID.String() }
func (e *Transferred) Kind() Kind             { return KindTransferred }
func (e *Transferred) Owner() string          { return e.From }
func (e *Transferred) OccurredAt() time.Time  { return e.Timestamp }
