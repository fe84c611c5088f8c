// Package grants maintains the patient-tenant relationship ledger and the
// cross-tenant read grants consulted by the row-visibility policies.
package grants

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ScopeAppointments = "appointments"

// PatientTenantGrant records that a patient has at least one
// appointment-derived relationship with a tenant.
type PatientTenantGrant struct {
	PatientUserID string
	TenantID      string
	Scope         string
	CreatedAt     time.Time
}

// AccessGrant records a read-only relationship from a resource tenant to a
// granted tenant for one patient.
type AccessGrant struct {
	ID               uuid.UUID
	ResourceTenantID string
	GrantedTenantID  string
	PatientID        string
	ReadOnly         bool
	CreatedAt        time.Time
}

// Ledger runs on the caller's transaction so grant writes share the booking
// transaction's atomicity.
type Ledger interface {
	// EnsurePatientGrant inserts the (patient, tenant) grant if absent.
	// Idempotent: booking twice leaves exactly one row.
	EnsurePatientGrant(ctx context.Context, tx pgx.Tx, patientID, tenantID, scope string) error
	ListPatientGrants(ctx context.Context, tx pgx.Tx, tenantID string) ([]PatientTenantGrant, error)
	GrantCrossTenantRead(ctx context.Context, tx pgx.Tx, grant AccessGrant) error
	ListAccessGrants(ctx context.Context, tx pgx.Tx, patientID string) ([]AccessGrant, error)
}

type PgLedger struct{}

func NewPgLedger() *PgLedger {
	return &PgLedger{}
}

func (l *PgLedger) EnsurePatientGrant(ctx context.Context, tx pgx.Tx, patientID, tenantID, scope string) error {
	if scope == "" {
		scope = ScopeAppointments
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO patient_tenant_grants (patient_user_id, tenant_id, scope, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (patient_user_id, tenant_id) DO NOTHING
	`, patientID, tenantID, scope)
	if err != nil {
		return fmt.Errorf("ensure patient grant: %w", err)
	}
	return nil
}

func (l *PgLedger) ListPatientGrants(ctx context.Context, tx pgx.Tx, tenantID string) ([]PatientTenantGrant, error) {
	rows, err := tx.Query(ctx, `
		SELECT patient_user_id, tenant_id, scope, created_at
		FROM patient_tenant_grants
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list patient grants: %w", err)
	}
	defer rows.Close()

	var result []PatientTenantGrant
	for rows.Next() {
		var g PatientTenantGrant
		if err := rows.Scan(&g.PatientUserID, &g.TenantID, &g.Scope, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (l *PgLedger) GrantCrossTenantRead(ctx context.Context, tx pgx.Tx, grant AccessGrant) error {
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO patient_access_grants (id, resource_tenant_id, granted_tenant_id, patient_id, read_only, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, grant.ID, grant.ResourceTenantID, grant.GrantedTenantID, grant.PatientID, grant.ReadOnly)
	if err != nil {
		return fmt.Errorf("grant cross-tenant read: %w", err)
	}
	return nil
}

func (l *PgLedger) ListAccessGrants(ctx context.Context, tx pgx.Tx, patientID string) ([]AccessGrant, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, resource_tenant_id, granted_tenant_id, patient_id, read_only, created_at
		FROM patient_access_grants
		WHERE patient_id = $1
		ORDER BY created_at
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	defer rows.Close()

	var result []AccessGrant
	for rows.Next() {
		var g AccessGrant
		if err := rows.Scan(&g.ID, &g.ResourceTenantID, &g.GrantedTenantID, &g.PatientID, &g.ReadOnly, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

var _ Ledger = (*PgLedger)(nil)
