package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinichub/scheduling/internal/auth"
	"github.com/clinichub/scheduling/internal/authz"
	"github.com/clinichub/scheduling/internal/onboarding"
	"github.com/clinichub/scheduling/internal/scheduling"
)

// SchedulingService is the booking engine surface the handlers need.
type SchedulingService interface {
	Availability(ctx context.Context, p *auth.Principal, query scheduling.AvailabilityQuery) ([]scheduling.Slot, error)
	Book(ctx context.Context, p *auth.Principal, cmd scheduling.BookCommand) (*scheduling.Appointment, error)
}

// Authorizer gates an (object, action) pair for a principal in a domain.
type Authorizer interface {
	Authorize(p *auth.Principal, domain, obj, act string) error
}

// OnboardingService issues and accepts invitation tokens.
type OnboardingService interface {
	Issue(tenantID, email, role, invitedBy string) (string, time.Time, error)
	Accept(ctx context.Context, p *auth.Principal, token string) (string, error)
}

const (
	objAvailabilities = "/queries/scheduling/availabilities"
	objAppointments   = "/commands/scheduling/appointments"
)

var bookingRoles = []string{"patient", "doctor", "secretary", "clinic_admin"}

func listAvailabilitiesHandler(svc SchedulingService, authorizer Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())

		query, err := parseAvailabilityQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		// Principals without a home tenant fall back to the wildcard
		// domain; row security then hides all non-granted rows.
		domain := p.TenantID
		if domain == "" {
			domain = authz.WildcardDomain
		}
		if err := authorizer.Authorize(p, domain, objAvailabilities, http.MethodGet); err != nil {
			handleAuthzError(w, err)
			return
		}

		slots, err := svc.Availability(r.Context(), p, query)
		if err != nil {
			handleSchedulingError(w, r, err)
			return
		}

		resp := make([]AvailabilityResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, AvailabilityResponse{
				ID:             s.ID,
				StartsAt:       s.StartsAt,
				EndsAt:         s.EndsAt,
				PractitionerID: s.PractitionerID,
				Capacity:       s.Capacity,
				Mode:           string(s.Mode),
				Status:         string(s.Status),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseAvailabilityQuery(r *http.Request) (scheduling.AvailabilityQuery, error) {
	var query scheduling.AvailabilityQuery

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("starts_at"))
	if err != nil {
		return query, errors.New("starts_at must be an RFC 3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("ends_at"))
	if err != nil {
		return query, errors.New("ends_at must be an RFC 3339 timestamp")
	}
	if !from.Before(to) {
		return query, errors.New("starts_at must be before ends_at")
	}

	query.From = from
	query.To = to
	query.PractitionerID = r.URL.Query().Get("practitioner_id")

	switch mode := r.URL.Query().Get("mode"); mode {
	case "":
	case string(scheduling.ModeOnsite), string(scheduling.ModeTele):
		query.Mode = scheduling.SlotMode(mode)
	default:
		return query, errors.New("mode must be onsite or tele")
	}

	return query, nil
}

func createAppointmentHandler(svc SchedulingService, authorizer Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}
		if req.PatientID == "" {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id is required")
			return
		}

		var mode scheduling.SlotMode
		switch req.Mode {
		case "":
		case string(scheduling.ModeOnsite), string(scheduling.ModeTele):
			mode = scheduling.SlotMode(req.Mode)
		default:
			writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be onsite or tele")
			return
		}

		tenantID, err := scheduling.ResolveTenant(p, req.TenantID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_tenant", "tenant_id must be provided when booking without a home tenant")
			return
		}

		if err := authorizer.Authorize(p, tenantID, objAppointments, http.MethodPost); err != nil {
			handleAuthzError(w, err)
			return
		}

		appt, err := svc.Book(r.Context(), p, scheduling.BookCommand{
			TenantID:  req.TenantID,
			SlotID:    slotID,
			PatientID: req.PatientID,
			Reason:    req.Reason,
			Mode:      mode,
		})
		if err != nil {
			handleSchedulingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{
			AppointmentID: appt.ID,
			SlotID:        appt.SlotID,
			PatientID:     appt.PatientID,
			Status:        string(appt.Status),
			Mode:          string(appt.Mode),
			CreatedAt:     appt.CreatedAt,
		})
	}
}

func createInvitationHandler(svc OnboardingService, onboardingURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())

		if p.TenantID == "" {
			writeError(w, http.StatusBadRequest, "missing_tenant", "the inviting administrator has no tenant")
			return
		}

		var req InvitationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Email == "" {
			writeError(w, http.StatusBadRequest, "invalid_email", "email is required")
			return
		}

		token, expiresAt, err := svc.Issue(p.TenantID, req.Email, req.Role, p.Subject)
		if err != nil {
			if errors.Is(err, onboarding.ErrUnsupportedRole) {
				writeError(w, http.StatusBadRequest, "unsupported_role", err.Error())
				return
			}
			handleInternalError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, InvitationResponse{
			InviteToken: token,
			InviteURL:   onboardingURL + "?token=" + token,
			ExpiresAt:   expiresAt,
		})
	}
}

func acceptInvitationHandler(svc OnboardingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())

		var req AcceptInvitationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		status, err := svc.Accept(r.Context(), p, req.Token)
		if err != nil {
			switch {
			case errors.Is(err, onboarding.ErrInvalidInvitation):
				writeError(w, http.StatusBadRequest, "invalid_invitation", "invitation token is invalid or expired")
			case errors.Is(err, onboarding.ErrEmailMismatch):
				writeError(w, http.StatusBadRequest, "email_mismatch", "the e-mail address does not match the invitation")
			case errors.Is(err, onboarding.ErrTenantMismatch):
				writeError(w, http.StatusBadRequest, "tenant_mismatch", "caller is already associated with another clinic")
			case errors.Is(err, auth.ErrUpstreamUnavailable):
				writeError(w, http.StatusBadGateway, "upstream_unavailable", "identity provider unavailable")
			default:
				handleInternalError(w, r, err)
			}
			return
		}

		writeJSON(w, http.StatusOK, AcceptInvitationResponse{Status: status})
	}
}

func handleAuthzError(w http.ResponseWriter, err error) {
	if errors.Is(err, authz.ErrForbidden) {
		writeError(w, http.StatusForbidden, "forbidden", "not authorised to perform this action")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}

func handleSchedulingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", "slot not found")
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is closed or at capacity")
	case errors.Is(err, auth.ErrMissingTenant):
		writeError(w, http.StatusBadRequest, "missing_tenant", "no tenant resolved for request")
	default:
		handleInternalError(w, r, err)
	}
}

// handleInternalError logs the cause and answers with a generic body so
// internal detail never leaks to callers.
func handleInternalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
