package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinichub/scheduling/internal/auth"
	"github.com/clinichub/scheduling/internal/db"
	"github.com/clinichub/scheduling/internal/grants"
)

// practitioner-side roles; a caller holding only patient is constrained to
// booking for itself.
var staffRoles = []string{"doctor", "nurse", "secretary", "clinic_admin"}

// EventPublisher fans booked events out to downstream consumers. Publishing
// happens after commit and must not affect the booking outcome.
type EventPublisher interface {
	PublishBooked(ctx context.Context, ev AppointmentBooked)
}

type BookCommand struct {
	TenantID  string // considered only when the caller has no home tenant
	SlotID    uuid.UUID
	PatientID string
	Reason    *string
	Mode      SlotMode // empty means inherit the slot's mode
}

type AvailabilityQuery struct {
	From           time.Time
	To             time.Time
	PractitionerID string
	Mode           SlotMode
}

type Service struct {
	runner db.TxRunner
	repo   Repository
	ledger grants.Ledger
	events EventPublisher
	log    zerolog.Logger
}

func NewService(runner db.TxRunner, repo Repository, ledger grants.Ledger, events EventPublisher, log zerolog.Logger) *Service {
	return &Service{
		runner: runner,
		repo:   repo,
		ledger: ledger,
		events: events,
		log:    log,
	}
}

// ResolveTenant picks the tenant partition a write must run against. The
// principal's home tenant always wins; a caller-supplied tenant is accepted
// only for identities without one.
func ResolveTenant(p *auth.Principal, requested string) (string, error) {
	if p.TenantID != "" {
		return p.TenantID, nil
	}
	if requested != "" {
		return requested, nil
	}
	return "", auth.ErrMissingTenant
}

// Availability returns the caller's visible open slots fully contained in
// the query window, ordered by start time. Read-only, no locking.
func (s *Service) Availability(ctx context.Context, p *auth.Principal, query AvailabilityQuery) ([]Slot, error) {
	filter := AvailabilityFilter{
		TenantID:       p.TenantID,
		From:           query.From,
		To:             query.To,
		PractitionerID: query.PractitionerID,
		Mode:           query.Mode,
	}

	var result []Slot
	err := s.runner.WithTenant(ctx, p.TenantID, func(tx pgx.Tx) error {
		slots, err := s.repo.ListAvailabilities(ctx, tx, filter)
		if err != nil {
			return err
		}
		result = slots
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch availabilities: %w", err)
	}
	return result, nil
}

// Book executes the appointment-creation state machine inside one
// tenant-scoped transaction. Concurrent attempts on the same slot serialize
// at the row lock; any failure rolls the whole transaction back.
func (s *Service) Book(ctx context.Context, p *auth.Principal, cmd BookCommand) (*Appointment, error) {
	tenantID, err := ResolveTenant(p, cmd.TenantID)
	if err != nil {
		return nil, err
	}

	// A patient-only caller books for itself, whatever the command says.
	patientID := cmd.PatientID
	if p.HasAnyRole("patient") && !p.HasAnyRole(staffRoles...) {
		patientID = p.Subject
	}

	var (
		appt  *Appointment
		event AppointmentBooked
	)

	err = s.runner.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		slot, err := s.repo.LockSlot(ctx, tx, tenantID, cmd.SlotID)
		if err != nil {
			return err
		}
		if slot.Status != SlotOpen {
			return fmt.Errorf("%w: slot is %s", ErrSlotUnavailable, slot.Status)
		}

		booked, err := s.repo.CountBooked(ctx, tx, tenantID, cmd.SlotID)
		if err != nil {
			return err
		}
		if booked >= slot.Capacity {
			return fmt.Errorf("%w: capacity reached", ErrSlotUnavailable)
		}

		mode := cmd.Mode
		if mode == "" {
			mode = slot.Mode
		}

		appt = &Appointment{
			ID:        uuid.New(),
			TenantID:  tenantID,
			SlotID:    cmd.SlotID,
			PatientID: patientID,
			Status:    StatusBooked,
			Reason:    cmd.Reason,
			Mode:      mode,
		}
		if err := s.repo.InsertAppointment(ctx, tx, appt); err != nil {
			return err
		}

		if booked+1 >= slot.Capacity {
			if err := s.repo.CloseSlot(ctx, tx, tenantID, cmd.SlotID); err != nil {
				return err
			}
		}

		if err := s.ledger.EnsurePatientGrant(ctx, tx, patientID, tenantID, grants.ScopeAppointments); err != nil {
			return err
		}

		event = AppointmentBooked{
			AppointmentID: appt.ID,
			SlotID:        appt.SlotID,
			TenantID:      appt.TenantID,
			OccurredAt:    appt.CreatedAt,
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal booked event: %w", err)
		}
		return s.repo.InsertEvent(ctx, tx, EventLog{
			EventType:     EventAppointmentBooked,
			TenantID:      tenantID,
			AppointmentID: &appt.ID,
			Payload:       payload,
		})
	})
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) || errors.Is(err, ErrSlotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	if s.events != nil {
		s.events.PublishBooked(ctx, event)
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("slot_id", cmd.SlotID.String()).
		Str("appointment_id", appt.ID.String()).
		Msg("appointment booked")

	return appt, nil
}
