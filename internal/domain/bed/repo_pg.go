package bed

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

const boardSelect = `
	SELECT b.id, b.name, b.department, b.is_occupied, b.is_reserved, b.is_custom,
		b.version, b.created_at, b.updated_at,
		p.id, p.name, p.sex, p.birth_date, p.admission_at, p.diagnosis, p.specialty,
		p.expected_discharge_date, p.origin_city, p.is_tfd, p.tfd_type, p.department,
		p.is_isolation, p.created_at, p.updated_at,
		r.id, r.patient_name, r.origin_clinic, r.diagnosis, r.department, r.created_at
	FROM beds b
	LEFT JOIN patients p ON p.bed_id = b.id
	LEFT JOIN bed_reservations r ON r.bed_id = b.id`

// boardRow holds the nullable sides of the board join.
type boardRow struct {
	pID        *uuid.UUID
	pName      *string
	pSex       *string
	pBirth     *time.Time
	pAdmission *time.Time
	pDiagnosis *string
	pSpecialty *string
	pExpected  *time.Time
	pCity      *string
	pTFD       *bool
	pTFDType   *string
	pDept      *string
	pIsolation *bool
	pCreated   *time.Time
	pUpdated   *time.Time
	rID        *uuid.UUID
	rPatient   *string
	rClinic    *string
	rDiagnosis *string
	rDept      *string
	rCreated   *time.Time
}

func scanBoardRow(row pgx.Row) (*Bed, error) {
	var b Bed
	var dept string
	var j boardRow
	err := row.Scan(&b.ID, &b.Name, &dept, &b.IsOccupied, &b.IsReserved, &b.IsCustom,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
		&j.pID, &j.pName, &j.pSex, &j.pBirth, &j.pAdmission, &j.pDiagnosis, &j.pSpecialty,
		&j.pExpected, &j.pCity, &j.pTFD, &j.pTFDType, &j.pDept,
		&j.pIsolation, &j.pCreated, &j.pUpdated,
		&j.rID, &j.rPatient, &j.rClinic, &j.rDiagnosis, &j.rDept, &j.rCreated)
	if err != nil {
		return nil, err
	}
	b.Department = Department(dept)

	if j.pID != nil {
		p := &Patient{
			ID:          *j.pID,
			BedID:       b.ID,
			Name:        deref(j.pName),
			Sex:         Sex(deref(j.pSex)),
			Diagnosis:   deref(j.pDiagnosis),
			Specialty:   j.pSpecialty,
			OriginCity:  deref(j.pCity),
			IsTFD:       j.pTFD != nil && *j.pTFD,
			TFDType:     j.pTFDType,
			Department:  Department(deref(j.pDept)),
			IsIsolation: j.pIsolation != nil && *j.pIsolation,
		}
		if j.pBirth != nil {
			p.BirthDate = DateOf(*j.pBirth)
		}
		if j.pAdmission != nil {
			p.AdmissionAt = *j.pAdmission
		}
		if j.pExpected != nil {
			d := DateOf(*j.pExpected)
			p.ExpectedDischargeDate = &d
		}
		if j.pCreated != nil {
			p.CreatedAt = *j.pCreated
		}
		if j.pUpdated != nil {
			p.UpdatedAt = *j.pUpdated
		}
		b.Patient = p
	}
	if j.rID != nil {
		res := &Reservation{
			ID:           *j.rID,
			BedID:        b.ID,
			PatientName:  deref(j.rPatient),
			OriginClinic: deref(j.rClinic),
			Diagnosis:    deref(j.rDiagnosis),
			Department:   Department(deref(j.rDept)),
		}
		if j.rCreated != nil {
			res.CreatedAt = *j.rCreated
		}
		b.Reservation = res
	}
	return &b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateArg(d *Date) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time
}

func (r *repoPG) ListBoard(ctx context.Context, dept Department) ([]*Bed, error) {
	rows, err := r.conn(ctx).Query(ctx, boardSelect+`
		WHERE ($1 = '' OR b.department = $1)
		ORDER BY b.department, b.name`, string(dept))
	if err != nil {
		return nil, db.Classify(fmt.Errorf("list board: %w", err))
	}
	defer rows.Close()

	var beds []*Bed
	for rows.Next() {
		b, err := scanBoardRow(rows)
		if err != nil {
			return nil, db.Classify(fmt.Errorf("scan bed: %w", err))
		}
		beds = append(beds, b)
	}
	return beds, db.Classify(rows.Err())
}

func (r *repoPG) getBed(ctx context.Context, id uuid.UUID, lock bool) (*Bed, error) {
	q := boardSelect + ` WHERE b.id = $1`
	if lock {
		q += ` FOR UPDATE OF b`
	}
	b, err := scanBoardRow(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBedNotFound
	}
	if err != nil {
		return nil, db.Classify(fmt.Errorf("get bed: %w", err))
	}
	return b, nil
}

func (r *repoPG) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return r.getBed(ctx, id, false)
}

func (r *repoPG) LockBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("lock bed: no transaction in context")
	}
	return r.getBed(ctx, id, true)
}

func (r *repoPG) CreateBed(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	b.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO beds (id, name, department, is_custom, version)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		b.ID, b.Name, string(b.Department), b.IsCustom, b.Version,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("create bed: %w", err))
	}
	return nil
}

func (r *repoPG) SeedBed(ctx context.Context, b *Bed) (bool, error) {
	b.ID = uuid.New()
	b.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO beds (id, name, department, is_custom, version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (department, name) DO NOTHING
		RETURNING created_at, updated_at`,
		b.ID, b.Name, string(b.Department), b.IsCustom, b.Version,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.Classify(fmt.Errorf("seed bed: %w", err))
	}
	return true, nil
}

func (r *repoPG) DeleteBed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM beds WHERE id = $1`, id)
	if err != nil {
		return db.Classify(fmt.Errorf("delete bed: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrBedNotFound
	}
	return nil
}

func (r *repoPG) SetBedState(ctx context.Context, id uuid.UUID, occupied, reserved bool, version int) (int, error) {
	var next int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE beds SET is_occupied = $2, is_reserved = $3,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $4
		RETURNING version`,
		id, occupied, reserved, version,
	).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrStaleVersion
	}
	if err != nil {
		return 0, db.Classify(fmt.Errorf("update bed state: %w", err))
	}
	return next, nil
}

const patientCols = `id, bed_id, name, sex, birth_date, admission_at, diagnosis, specialty,
	expected_discharge_date, origin_city, is_tfd, tfd_type, department, is_isolation,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var sex, dept string
	var birth time.Time
	var expected *time.Time
	err := row.Scan(&p.ID, &p.BedID, &p.Name, &sex, &birth, &p.AdmissionAt, &p.Diagnosis, &p.Specialty,
		&expected, &p.OriginCity, &p.IsTFD, &p.TFDType, &dept, &p.IsIsolation,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Sex = Sex(sex)
	p.Department = Department(dept)
	p.BirthDate = DateOf(birth)
	if expected != nil {
		d := DateOf(*expected)
		p.ExpectedDischargeDate = &d
	}
	return &p, nil
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, bed_id, name, sex, birth_date, admission_at, diagnosis,
			specialty, expected_discharge_date, origin_city, is_tfd, tfd_type,
			department, is_isolation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		p.ID, p.BedID, p.Name, string(p.Sex), p.BirthDate.Time, p.AdmissionAt, p.Diagnosis,
		p.Specialty, dateArg(p.ExpectedDischargeDate), p.OriginCity, p.IsTFD, p.TFDType,
		string(p.Department), p.IsIsolation,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("create patient: %w", err))
	}
	return nil
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, db.Classify(fmt.Errorf("get patient: %w", err))
	}
	return p, nil
}

func (r *repoPG) UpdatePatient(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET bed_id = $2, diagnosis = $3, specialty = $4,
			expected_discharge_date = $5, origin_city = $6, is_tfd = $7, tfd_type = $8,
			department = $9, is_isolation = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.BedID, p.Diagnosis, p.Specialty,
		dateArg(p.ExpectedDischargeDate), p.OriginCity, p.IsTFD, p.TFDType,
		string(p.Department), p.IsIsolation,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	if err != nil {
		return db.Classify(fmt.Errorf("update patient: %w", err))
	}
	return nil
}

func (r *repoPG) DeletePatient(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return db.Classify(fmt.Errorf("delete patient: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *repoPG) CreateReservation(ctx context.Context, res *Reservation) error {
	res.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed_reservations (id, bed_id, patient_name, origin_clinic, diagnosis, department)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		res.ID, res.BedID, res.PatientName, res.OriginClinic, res.Diagnosis, string(res.Department),
	).Scan(&res.CreatedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("create reservation: %w", err))
	}
	return nil
}

func (r *repoPG) DeleteReservation(ctx context.Context, bedID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bed_reservations WHERE bed_id = $1`, bedID)
	if err != nil {
		return db.Classify(fmt.Errorf("delete reservation: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

const dischargeCols = `id, patient_id, bed_id, bed_name, name, sex, birth_date, admission_at,
	diagnosis, specialty, origin_city, is_tfd, tfd_type, department, discharge_at,
	discharge_type, actual_stay_days, discharged_by, created_at`

func scanDischarge(row pgx.Row) (*DischargeRecord, error) {
	var d DischargeRecord
	var sex, dept, typ string
	var birth time.Time
	var by *string
	err := row.Scan(&d.ID, &d.PatientID, &d.BedID, &d.BedName, &d.Name, &sex, &birth, &d.AdmissionAt,
		&d.Diagnosis, &d.Specialty, &d.OriginCity, &d.IsTFD, &d.TFDType, &dept, &d.DischargeAt,
		&typ, &d.ActualStayDays, &by, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Sex = Sex(sex)
	d.Department = Department(dept)
	d.DischargeType = DischargeType(typ)
	d.BirthDate = DateOf(birth)
	d.DischargedBy = deref(by)
	return &d, nil
}

func (r *repoPG) CreateDischarge(ctx context.Context, d *DischargeRecord) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_discharges (id, patient_id, bed_id, bed_name, name, sex,
			birth_date, admission_at, diagnosis, specialty, origin_city, is_tfd, tfd_type,
			department, discharge_at, discharge_type, actual_stay_days, discharged_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at`,
		d.ID, d.PatientID, d.BedID, d.BedName, d.Name, string(d.Sex), d.BirthDate.Time, d.AdmissionAt,
		d.Diagnosis, d.Specialty, d.OriginCity, d.IsTFD, d.TFDType, string(d.Department), d.DischargeAt,
		string(d.DischargeType), d.ActualStayDays, nullIfEmpty(d.DischargedBy),
	).Scan(&d.CreatedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("create discharge: %w", err))
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *repoPG) ListDischarges(ctx context.Context, f DischargeFilter, limit, offset int) ([]*DischargeRecord, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Department != "" {
		add("department = $%d", string(f.Department))
	}
	if f.Type != "" {
		add("discharge_type = $%d", string(f.Type))
	}
	if !f.From.IsZero() {
		add("discharge_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("discharge_at < $%d", f.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_discharges`+clause, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("count discharges: %w", err))
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM patient_discharges%s
		ORDER BY discharge_at DESC, id LIMIT $%d OFFSET $%d`,
		dischargeCols, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("list discharges: %w", err))
	}
	defer rows.Close()

	var items []*DischargeRecord
	for rows.Next() {
		d, err := scanDischarge(rows)
		if err != nil {
			return nil, 0, db.Classify(fmt.Errorf("scan discharge: %w", err))
		}
		items = append(items, d)
	}
	return items, total, db.Classify(rows.Err())
}

func (r *repoPG) CreateTransfer(ctx context.Context, t *Transfer) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_transfers (id, patient_id, from_bed_id, to_bed_id,
			from_department, to_department, transferred_at, transferred_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.PatientID, t.FromBedID, t.ToBedID,
		string(t.FromDepartment), string(t.ToDepartment), t.TransferredAt, nullIfEmpty(t.TransferredBy))
	if err != nil {
		return db.Classify(fmt.Errorf("create transfer: %w", err))
	}
	return nil
}

func (r *repoPG) ListTransfers(ctx context.Context, patientID uuid.UUID) ([]*Transfer, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, from_bed_id, to_bed_id, from_department, to_department,
			transferred_at, transferred_by
		FROM patient_transfers WHERE patient_id = $1
		ORDER BY transferred_at`, patientID)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("list transfers: %w", err))
	}
	defer rows.Close()

	var items []*Transfer
	for rows.Next() {
		var t Transfer
		var from, to string
		var by *string
		if err := rows.Scan(&t.ID, &t.PatientID, &t.FromBedID, &t.ToBedID, &from, &to,
			&t.TransferredAt, &by); err != nil {
			return nil, db.Classify(fmt.Errorf("scan transfer: %w", err))
		}
		t.FromDepartment = Department(from)
		t.ToDepartment = Department(to)
		t.TransferredBy = deref(by)
		items = append(items, &t)
	}
	return items, db.Classify(rows.Err())
}
