package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	// ErrSlotUnavailable covers closed slots and slots at capacity.
	ErrSlotUnavailable = errors.New("slot unavailable")
)

// AvailabilityFilter selects open slots fully contained in [From, To] for
// one tenant, optionally narrowed by practitioner and mode.
type AvailabilityFilter struct {
	TenantID       string
	From           time.Time
	To             time.Time
	PractitionerID string
	Mode           SlotMode
}

// Repository contains all storage interactions of the booking engine. Every
// method runs on the caller's transaction so the book state machine observes
// one consistent snapshot under the slot row lock.
type Repository interface {
	ListAvailabilities(ctx context.Context, tx pgx.Tx, filter AvailabilityFilter) ([]Slot, error)

	// LockSlot acquires the exclusive row lock that serializes concurrent
	// booking attempts on one slot.
	LockSlot(ctx context.Context, tx pgx.Tx, tenantID string, slotID uuid.UUID) (*Slot, error)
	CountBooked(ctx context.Context, tx pgx.Tx, tenantID string, slotID uuid.UUID) (int, error)
	InsertAppointment(ctx context.Context, tx pgx.Tx, appt *Appointment) error
	CloseSlot(ctx context.Context, tx pgx.Tx, tenantID string, slotID uuid.UUID) error

	InsertEvent(ctx context.Context, tx pgx.Tx, ev EventLog) error
}
