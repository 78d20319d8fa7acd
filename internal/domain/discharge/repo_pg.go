package discharge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/db"
)

const onePendingIndex = "discharge_controls_one_pending_idx"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const controlCols = `id, patient_id, patient_name, bed_id, bed_name, department, discharge_type,
	status, requested_at, requested_by, completed_at, cancelled_at, justification`

func scanControl(row pgx.Row) (*Control, error) {
	var c Control
	var dept, typ, status string
	var by *string
	err := row.Scan(&c.ID, &c.PatientID, &c.PatientName, &c.BedID, &c.BedName, &dept, &typ,
		&status, &c.RequestedAt, &by, &c.CompletedAt, &c.CancelledAt, &c.Justification)
	if err != nil {
		return nil, err
	}
	c.Department = bed.Department(dept)
	c.DischargeType = bed.DischargeType(typ)
	c.Status = Status(status)
	if by != nil {
		c.RequestedBy = *by
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Control) error {
	c.ID = uuid.New()
	c.Status = StatusPending
	var by interface{}
	if c.RequestedBy != "" {
		by = c.RequestedBy
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO discharge_controls (id, patient_id, patient_name, bed_id, bed_name,
			department, discharge_type, status, requested_at, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.PatientID, c.PatientName, c.BedID, c.BedName,
		string(c.Department), string(c.DischargeType), string(c.Status), c.RequestedAt, by)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == onePendingIndex {
		return ErrAlreadyPending
	}
	if err != nil {
		return db.Classify(fmt.Errorf("create discharge control: %w", err))
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, id uuid.UUID, lock bool) (*Control, error) {
	q := `SELECT ` + controlCols + ` FROM discharge_controls WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	c, err := scanControl(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrControlNotFound
	}
	if err != nil {
		return nil, db.Classify(fmt.Errorf("get discharge control: %w", err))
	}
	return c, nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Control, error) {
	return r.get(ctx, id, false)
}

func (r *repoPG) Lock(ctx context.Context, id uuid.UUID) (*Control, error) {
	return r.get(ctx, id, true)
}

func (r *repoPG) transition(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return db.Classify(fmt.Errorf("update discharge control: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repoPG) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time, justification *string) error {
	return r.transition(ctx, `
		UPDATE discharge_controls SET status = 'completed', completed_at = $2, justification = $3
		WHERE id = $1 AND status = 'pending'`, id, at, justification)
}

func (r *repoPG) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(ctx, `
		UPDATE discharge_controls SET status = 'cancelled', cancelled_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
}

func (r *repoPG) HasPending(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM discharge_controls WHERE patient_id = $1 AND status = 'pending')`,
		patientID).Scan(&exists)
	if err != nil {
		return false, db.Classify(fmt.Errorf("check pending discharge: %w", err))
	}
	return exists, nil
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Control, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM discharge_controls WHERE status = $1`, string(status)).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("count discharge controls: %w", err))
	}

	order := "requested_at ASC"
	if status != StatusPending {
		order = "COALESCE(completed_at, cancelled_at) DESC"
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+controlCols+` FROM discharge_controls
		WHERE status = $1 ORDER BY `+order+`, id LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("list discharge controls: %w", err))
	}
	defer rows.Close()

	var items []*Control
	for rows.Next() {
		c, err := scanControl(rows)
		if err != nil {
			return nil, 0, db.Classify(fmt.Errorf("scan discharge control: %w", err))
		}
		items = append(items, c)
	}
	return items, total, db.Classify(rows.Err())
}
