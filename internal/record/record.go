package record

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a persisted migration record.
type Status string

// Record statuses. SKIPPED is assigned by operators only; the runner treats
// it like COMPLETED when computing pending work.
const (
	StatusPending    Status = "PENDING"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRolledBack Status = "ROLLED_BACK"
	StatusSkipped    Status = "SKIPPED"
)

// transitions lists the allowed edges of the state machine.
var transitions = map[Status][]Status{ //nolint:gochecknoglobals // immutable lookup table
	StatusPending:    {StatusRunning},
	StatusRunning:    {StatusRunning, StatusCompleted, StatusFailed},
	StatusFailed:     {StatusRunning},
	StatusCompleted:  {StatusRolledBack},
	StatusRolledBack: {StatusRunning},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusRolledBack, StatusSkipped:
		return true
	default:
		return false
	}
}

// Done reports whether a record in this status counts as already executed.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusSkipped
}

func (s Status) String() string { return string(s) }

// ParseStatus converts a stored string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}

	return s, nil
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// Record is the persisted audit entry for one migration name.
type Record struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Description  string         `json:"description"`
	Rollbackable bool           `json:"rollbackable"`
	Status       Status         `json:"status"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	ExecutedBy   string         `json:"executed_by,omitempty"`
	Environment  string         `json:"environment"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RolledBackAt *time.Time     `json:"rolled_back_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewParams holds the definition fields mirrored into a new record.
type NewParams struct {
	Name         string
	Version      string
	Description  string
	Rollbackable bool
	Environment  string
}

// New builds a PENDING record with a fresh ID.
func New(p NewParams, now time.Time) *Record {
	return &Record{
		ID:           uuid.NewString(),
		Name:         p.Name,
		Version:      p.Version,
		Description:  p.Description,
		Rollbackable: p.Rollbackable,
		Status:       StatusPending,
		Environment:  p.Environment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Transition moves the record to the given status, enforcing the state machine.
func (r *Record) Transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%s: %s -> %s: %w", r.Name, r.Status, to, ErrInvalidTransition)
	}

	r.Status = to
	r.UpdatedAt = now

	return nil
}

// MergeMetadata copies every key of extra into the record's metadata,
// keeping keys that extra does not mention.
func (r *Record) MergeMetadata(extra map[string]any) {
	if len(extra) == 0 {
		return
	}

	if r.Metadata == nil {
		r.Metadata = make(map[string]any, len(extra))
	}

	maps.Copy(r.Metadata, extra)
}

// Clone returns a copy that shares no mutable state with r.
func (r *Record) Clone() *Record {
	c := *r

	if r.Metadata != nil {
		c.Metadata = maps.Clone(r.Metadata)
	}

	if r.ExecutedAt != nil {
		t := *r.ExecutedAt
		c.ExecutedAt = &t
	}

	if r.RolledBackAt != nil {
		t := *r.RolledBackAt
		c.RolledBackAt = &t
	}

	return &c
}
