package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bedboard/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Discharges(ctx context.Context, since time.Time) ([]Discharge, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, name, origin_city, discharge_at
		FROM patient_discharges
		WHERE discharge_at >= $1`, since)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("query discharges: %w", err))
	}
	defer rows.Close()

	var out []Discharge
	for rows.Next() {
		var d Discharge
		if err := rows.Scan(&d.ID, &d.PatientID, &d.Name, &d.OriginCity, &d.DischargeAt); err != nil {
			return nil, db.Classify(fmt.Errorf("scan discharge: %w", err))
		}
		out = append(out, d)
	}
	return out, db.Classify(rows.Err())
}

// Patient ids are shared between patients and patient_discharges, so a
// readmission keeps its subject after discharge.
func (r *repoPG) Admissions(ctx context.Context, after time.Time) ([]Admission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, origin_city, diagnosis, admission_at, TRUE
		FROM patients
		WHERE admission_at > $1
		UNION ALL
		SELECT patient_id, name, origin_city, diagnosis, admission_at, FALSE
		FROM patient_discharges
		WHERE admission_at > $1`, after)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("query admissions: %w", err))
	}
	defer rows.Close()

	var out []Admission
	for rows.Next() {
		var a Admission
		if err := rows.Scan(&a.PatientID, &a.Name, &a.OriginCity, &a.Diagnosis, &a.AdmissionAt, &a.Active); err != nil {
			return nil, db.Classify(fmt.Errorf("scan admission: %w", err))
		}
		out = append(out, a)
	}
	return out, db.Classify(rows.Err())
}

func (r *repoPG) UpsertInvestigation(ctx context.Context, key Key, inv *Investigation) error {
	var notes, by interface{}
	if inv.Notes != "" {
		notes = inv.Notes
	}
	if inv.InvestigatedBy != "" {
		by = inv.InvestigatedBy
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO alert_investigations (id, alert_kind, subject_id, reference_id, status,
			notes, investigated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (alert_kind, subject_id, reference_id) DO UPDATE SET
			status = EXCLUDED.status, notes = EXCLUDED.notes,
			investigated_by = EXCLUDED.investigated_by, updated_at = EXCLUDED.updated_at`,
		uuid.New(), string(key.Kind), key.SubjectID, key.ReferenceID, string(inv.Status),
		notes, by, inv.UpdatedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("upsert investigation: %w", err))
	}
	return nil
}

func (r *repoPG) Investigations(ctx context.Context, kind Kind) (map[Key]*Investigation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT subject_id, reference_id, status, COALESCE(notes, ''), COALESCE(investigated_by, ''), updated_at
		FROM alert_investigations WHERE alert_kind = $1`, string(kind))
	if err != nil {
		return nil, db.Classify(fmt.Errorf("list investigations: %w", err))
	}
	defer rows.Close()

	out := make(map[Key]*Investigation)
	for rows.Next() {
		k := Key{Kind: kind}
		var inv Investigation
		var status string
		if err := rows.Scan(&k.SubjectID, &k.ReferenceID, &status, &inv.Notes, &inv.InvestigatedBy, &inv.UpdatedAt); err != nil {
			return nil, db.Classify(fmt.Errorf("scan investigation: %w", err))
		}
		inv.Status = InvestigationStatus(status)
		inv.Key = k.String()
		out[k] = &inv
	}
	return out, db.Classify(rows.Err())
}
