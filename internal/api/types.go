package api

import (
	"time"

	"github.com/google/uuid"
)

type AvailabilityResponse struct {
	ID             uuid.UUID `json:"id"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	PractitionerID string    `json:"practitioner_id"`
	Capacity       int       `json:"capacity"`
	Mode           string    `json:"mode"`
	Status         string    `json:"status"`
}

type CreateAppointmentRequest struct {
	SlotID    string  `json:"slot_id"`
	PatientID string  `json:"patient_id"`
	Reason    *string `json:"reason,omitempty"`
	Mode      string  `json:"mode,omitempty"`
	TenantID  string  `json:"tenant_id,omitempty"`
}

type CreateAppointmentResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	PatientID     string    `json:"patient_id"`
	Status        string    `json:"status"`
	Mode          string    `json:"mode"`
	CreatedAt     time.Time `json:"created_at"`
}

type InvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type InvitationResponse struct {
	InviteToken string    `json:"invite_token"`
	InviteURL   string    `json:"invite_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

type AcceptInvitationResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
