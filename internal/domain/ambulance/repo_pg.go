package ambulance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const requestCols = `id, patient_name, sector, bed_label, is_puerpera, appropriate_crib, mobility,
	vehicle_type, vehicle_subtype, origin_city, request_date, request_time, status,
	requested_by, created_at, confirmed_at, cancelled_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	var mobility, vehicle, status string
	var date time.Time
	var by *string
	err := row.Scan(&req.ID, &req.PatientName, &req.Sector, &req.BedLabel, &req.IsPuerpera,
		&req.AppropriateCrib, &mobility, &vehicle, &req.VehicleSubtype, &req.OriginCity,
		&date, &req.RequestTime, &status, &by, &req.CreatedAt, &req.ConfirmedAt, &req.CancelledAt)
	if err != nil {
		return nil, err
	}
	req.Mobility = Mobility(mobility)
	req.VehicleType = VehicleType(vehicle)
	req.Status = Status(status)
	req.RequestDate.Time = date
	if by != nil {
		req.RequestedBy = *by
	}
	return &req, nil
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	req.ID = uuid.New()
	var by interface{}
	if req.RequestedBy != "" {
		by = req.RequestedBy
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ambulance_requests (id, patient_name, sector, bed_label, is_puerpera,
			appropriate_crib, mobility, vehicle_type, vehicle_subtype, origin_city,
			request_date, request_time, status, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		req.ID, req.PatientName, req.Sector, req.BedLabel, req.IsPuerpera,
		req.AppropriateCrib, string(req.Mobility), string(req.VehicleType), req.VehicleSubtype, req.OriginCity,
		req.RequestDate.Time, req.RequestTime, string(req.Status), by, req.CreatedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("create ambulance request: %w", err))
	}
	return nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM ambulance_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, db.Classify(fmt.Errorf("get ambulance request: %w", err))
	}
	return req, nil
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, status Status, at time.Time) (*Request, error) {
	col := "confirmed_at"
	if status == StatusCancelled {
		col = "cancelled_at"
	}
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulance_requests SET status = $2, `+col+` = $3
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+requestCols, id, string(status), at))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, db.Classify(fmt.Errorf("transition ambulance request: %w", err))
	}
	return req, nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Request, int, error) {
	var where []string
	var args []interface{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.Date.IsZero() {
		args = append(args, f.Date.Time)
		where = append(where, fmt.Sprintf("request_date = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ambulance_requests`+cond, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("count ambulance requests: %w", err))
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+requestCols+` FROM ambulance_requests`+cond+
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("list ambulance requests: %w", err))
	}
	defer rows.Close()
	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, db.Classify(fmt.Errorf("scan ambulance request: %w", err))
		}
		out = append(out, req)
	}
	return out, total, db.Classify(rows.Err())
}

func (r *repoPG) CreatedBetween(ctx context.Context, from, to time.Time) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+requestCols+` FROM ambulance_requests
		WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, from, to)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("ambulance requests in range: %w", err))
	}
	defer rows.Close()
	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, db.Classify(fmt.Errorf("scan ambulance request: %w", err))
		}
		out = append(out, req)
	}
	return out, db.Classify(rows.Err())
}
