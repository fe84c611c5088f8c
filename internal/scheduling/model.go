package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type SlotMode string

const (
	ModeOnsite SlotMode = "onsite"
	ModeTele   SlotMode = "tele"
)

type SlotStatus string

const (
	SlotOpen   SlotStatus = "open"
	SlotClosed SlotStatus = "closed"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Calendar belongs to one tenant and one practitioner. It is immutable once
// a slot references it.
type Calendar struct {
	ID             uuid.UUID
	TenantID       string
	PractitionerID string
}

type Slot struct {
	ID             uuid.UUID
	TenantID       string
	CalendarID     uuid.UUID
	PractitionerID string
	StartsAt       time.Time
	EndsAt         time.Time
	Capacity       int
	Mode           SlotMode
	Status         SlotStatus
}

type Appointment struct {
	ID        uuid.UUID
	TenantID  string
	SlotID    uuid.UUID
	PatientID string
	Status    AppointmentStatus
	Reason    *string
	Mode      SlotMode
	CreatedAt time.Time
}

// AppointmentBooked is emitted after a booking commits, for downstream
// consumers.
type AppointmentBooked struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	TenantID      string    `json:"tenant_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const EventAppointmentBooked = "APPOINTMENT_BOOKED"

type EventLog struct {
	ID            int64
	EventType     string
	TenantID      string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
