package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/domain/bed/bedtest"
	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	mu         sync.Mutex
	discharges []Discharge
	admissions []Admission
	invs       map[Key]*Investigation
}

func newMockRepo() *mockRepo {
	return &mockRepo{invs: make(map[Key]*Investigation)}
}

func (m *mockRepo) Discharges(_ context.Context, since time.Time) ([]Discharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Discharge
	for _, d := range m.discharges {
		if !d.DischargeAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepo) Admissions(_ context.Context, after time.Time) ([]Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Admission
	for _, a := range m.admissions {
		if a.AdmissionAt.After(after) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepo) UpsertInvestigation(_ context.Context, key Key, inv *Investigation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.invs[key] = &cp
	return nil
}

func (m *mockRepo) Investigations(_ context.Context, kind Kind) (map[Key]*Investigation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Key]*Investigation)
	for k, v := range m.invs {
		if k.Kind == kind {
			cp := *v
			out[k] = &cp
		}
	}
	return out, nil
}

// -- Fixture --

type fixture struct {
	beds   *bedtest.Repo
	repo   *mockRepo
	pub    *changefeed.Recorder
	bedSvc *bed.Service
	svc    *Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		beds: bedtest.NewRepo(),
		repo: newMockRepo(),
		pub:  &changefeed.Recorder{},
		now:  time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.beds.Now = clock
	f.bedSvc = bed.NewService(f.beds, db.NewMemTxRunner(f.beds), f.pub)
	f.bedSvc.SetClock(clock, time.UTC)
	f.svc = NewService(f.repo, f.bedSvc, f.pub, 15, 30)
	f.svc.SetClock(clock)
	return f
}

func (f *fixture) admit(t *testing.T, bedName, patient string, daysAgo int) *bed.Patient {
	t.Helper()
	id := f.beds.AddBed(bed.DeptClinicaMedica, bedName, false)
	p, err := f.bedSvc.Admit(context.Background(), id, bed.AdmitRequest{
		Name:        patient,
		Sex:         bed.SexFemale,
		BirthDate:   bed.NewDate(1948, 3, 2),
		AdmissionAt: f.now.AddDate(0, 0, -daysAgo),
		Diagnosis:   "Pneumonia",
		OriginCity:  "Piracicaba",
	})
	require.NoError(t, err)
	return p
}

func TestLongStay_AdmittedTwentyDaysAgo(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, "2A", "Maria Silva", 20)
	f.admit(t, "2B", "Joao Souza", 4)

	alerts, err := f.svc.LongStay(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Maria Silva", alerts[0].PatientName)
	assert.Equal(t, "2A", alerts[0].BedName)
	assert.Equal(t, 20, alerts[0].DaysInHospital)
	assert.Equal(t, p.ID, alerts[0].PatientID)
	assert.Nil(t, alerts[0].Investigation)
}

func TestLongStay_InvalidOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.LongStay(context.Background(), "sideways")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLongStay_JoinedWithInvestigation(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, "2A", "Maria Silva", 20)
	ctx := auth.ContextWithPrincipal(context.Background(), auth.Principal{UserID: "u-9", Email: "ccih@example.org", Active: true})

	inv, err := f.svc.RecordInvestigation(ctx, LongStayKey(p.ID).String(), InvestigationInput{Status: Investigated, Notes: "  social case  "})
	require.NoError(t, err)
	assert.Equal(t, "ccih@example.org", inv.InvestigatedBy)
	assert.Equal(t, "social case", inv.Notes)

	alerts, err := f.svc.LongStay(context.Background(), OrderAsc)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].Investigation)
	assert.Equal(t, Investigated, alerts[0].Investigation.Status)
}

func TestRecordInvestigation_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	key := LongStayKey(uuid.New()).String()

	_, err := f.svc.RecordInvestigation(context.Background(), key, InvestigationInput{Status: Investigated})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.svc.RecordInvestigation(context.Background(), key, InvestigationInput{Status: NotInvestigated, Notes: "reopened"})
	require.NoError(t, err)

	invs, err := f.repo.Investigations(context.Background(), KindLongStay)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	for _, inv := range invs {
		assert.Equal(t, NotInvestigated, inv.Status)
		assert.Equal(t, "reopened", inv.Notes)
	}
	assert.Equal(t, []string{changefeed.TableInvestigations}, f.pub.Tables())
}

func TestRecordInvestigation_Rejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordInvestigation(context.Background(), "nope", InvestigationInput{Status: Investigated})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.RecordInvestigation(context.Background(), LongStayKey(uuid.New()).String(), InvestigationInput{Status: "pending"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.repo.invs)
}

func TestReadmissions_DaysAndKeys(t *testing.T) {
	f := newFixture(t)
	patient := uuid.New()
	discharge := uuid.New()
	dischargeAt := f.now.AddDate(0, 0, -12)
	f.repo.discharges = []Discharge{{
		ID:          discharge,
		PatientID:   uuid.New(),
		Name:        "Maria Silva",
		OriginCity:  "Piracicaba",
		DischargeAt: dischargeAt,
	}}
	f.repo.admissions = []Admission{{
		PatientID:   patient,
		Name:        "Maria Silva",
		OriginCity:  "Piracicaba",
		Diagnosis:   "ICC",
		AdmissionAt: dischargeAt.Add(9*24*time.Hour + 3*time.Hour),
		Active:      true,
	}}
	key := ReadmissionKey(patient, discharge)
	f.repo.invs[key] = &Investigation{Key: key.String(), Status: NotInvestigated}

	list, err := f.svc.Readmissions(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 9, list[0].DaysBetween)
	assert.Equal(t, key.String(), list[0].Key)
	assert.True(t, list[0].StillAdmitted)
	require.NotNil(t, list[0].Investigation)
	assert.Equal(t, NotInvestigated, list[0].Investigation.Status)

	list, err = f.svc.Readmissions(context.Background(), f.now.AddDate(0, 0, -5))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReadmissions_ConfiguredWindow(t *testing.T) {
	f := newFixture(t)
	dischargeAt := f.now.AddDate(0, 0, -40)
	f.repo.discharges = []Discharge{{ID: uuid.New(), PatientID: uuid.New(), Name: "Ana", OriginCity: "Limeira", DischargeAt: dischargeAt}}
	f.repo.admissions = []Admission{{PatientID: uuid.New(), Name: "Ana", OriginCity: "Limeira", AdmissionAt: dischargeAt.Add(20 * 24 * time.Hour)}}

	list, err := f.svc.Readmissions(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	narrow := NewService(f.repo, f.bedSvc, f.pub, 15, 14)
	list, err = narrow.Readmissions(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
