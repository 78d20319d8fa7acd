// Package sandbox seeds the default ward layout and, for demos, a
// reproducible set of synthetic admissions.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedboard/internal/domain/bed"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls what Seed creates.
type SeedConfig struct {
	// DemoPatients admits this many synthetic patients into free beds.
	DemoPatients int   `json:"demoPatients"`
	Seed         int64 `json:"seed"`
}

// Layout maps each department to the bed names seeded for it.
type Layout map[bed.Department][]string

func numbered(prefix string, from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func rooms(from, to int, letters ...string) []string {
	var out []string
	for i := from; i <= to; i++ {
		for _, l := range letters {
			out = append(out, fmt.Sprintf("%d%s", i, l))
		}
	}
	return out
}

// DefaultLayout is the seeded ward plan. PRONTO SOCORRO PEDIATRIA exists as
// a department but gets no beds by default.
func DefaultLayout() Layout {
	return Layout{
		bed.DeptClinicaMedica:    rooms(1, 6, "A", "B"),
		bed.DeptProntoSocorro:    numbered("PS-", 1, 8),
		bed.DeptClinicaCirurgica: rooms(10, 15, "A", "B"),
		bed.DeptUTIAdulto:        numbered("BOX-", 1, 10),
		bed.DeptUTINeonatal:      numbered("INC-", 1, 6),
		bed.DeptPediatria:        numbered("P-", 1, 8),
		bed.DeptMaternidade:      numbered("M-", 1, 10),
	}
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	BedsCreated int           `json:"bedsCreated"`
	Admitted    int           `json:"admitted"`
	Duration    time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Name pools
// ---------------------------------------------------------------------------

var (
	femaleNames = []string{"Maria", "Ana", "Francisca", "Antonia", "Adriana", "Juliana", "Marcia", "Fernanda", "Patricia", "Aline"}
	maleNames   = []string{"Jose", "Joao", "Antonio", "Francisco", "Carlos", "Paulo", "Pedro", "Lucas", "Luiz", "Marcos"}
	surnames    = []string{"Silva", "Santos", "Oliveira", "Souza", "Rodrigues", "Ferreira", "Alves", "Pereira", "Lima", "Gomes", "Costa", "Ribeiro"}
	cities      = []string{"Piracicaba", "Limeira", "Rio Claro", "Americana", "Santa Barbara d'Oeste", "Sao Pedro", "Charqueada", "Aguas de Sao Pedro"}
	tfdTypes    = []string{"ONCOLOGIA", "HEMODIALISE", "CARDIOLOGIA"}

	diagnoses = map[bed.Department][]string{
		bed.DeptClinicaMedica:    {"Pneumonia", "ICC descompensada", "DPOC exacerbado", "Celulite", "AVC isquemico"},
		bed.DeptProntoSocorro:    {"Dor toracica", "Crise hipertensiva", "Desidratacao", "Trauma leve"},
		bed.DeptClinicaCirurgica: {"Colecistite", "Apendicite", "Hernia inguinal", "Fratura de femur"},
		bed.DeptUTIAdulto:        {"Sepse", "IAM", "Insuficiencia respiratoria", "Choque cardiogenico"},
		bed.DeptUTINeonatal:      {"Prematuridade", "Desconforto respiratorio", "Ictericia neonatal"},
		bed.DeptPediatria:        {"Bronquiolite", "Pneumonia", "Gastroenterite", "Asma"},
		bed.DeptMaternidade:      {"Parto normal", "Cesarea", "Pre-eclampsia"},
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic admissions.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

// Admission builds a plausible admission for dept as of now. Age and sex
// follow the department; stays range up to 25 days so some cross the long
// stay threshold.
func (g *DataGenerator) Admission(dept bed.Department, now time.Time) bed.AdmitRequest {
	sex := bed.SexFemale
	if dept != bed.DeptMaternidade && g.rng.Intn(2) == 0 {
		sex = bed.SexMale
	}
	first := g.pick(femaleNames)
	if sex == bed.SexMale {
		first = g.pick(maleNames)
	}

	stay := time.Duration(g.between(1, 25*24)) * time.Hour
	admission := now.Add(-stay).Truncate(time.Minute)

	var birth time.Time
	switch dept {
	case bed.DeptUTINeonatal:
		birth = admission.AddDate(0, 0, -g.between(1, 20))
	case bed.DeptPediatria, bed.DeptProntoSocorroPediatria:
		birth = admission.AddDate(0, -g.between(1, 144), 0)
	case bed.DeptMaternidade:
		birth = admission.AddDate(-g.between(16, 42), 0, -g.between(0, 364))
	default:
		birth = admission.AddDate(-g.between(18, 95), 0, -g.between(0, 364))
	}

	req := bed.AdmitRequest{
		Name:        fmt.Sprintf("%s %s %s", first, g.pick(surnames), g.pick(surnames)),
		Sex:         sex,
		BirthDate:   bed.DateOf(birth),
		AdmissionAt: admission,
		Diagnosis:   g.pick(diagnoses[dept]),
		OriginCity:  g.pick(cities),
		IsIsolation: g.rng.Intn(8) == 0,
	}
	if g.rng.Intn(6) == 0 {
		req.IsTFD = true
		t := g.pick(tfdTypes)
		req.TFDType = &t
	}
	if g.rng.Intn(3) == 0 {
		d := bed.DateOf(now.AddDate(0, 0, g.between(1, 7)))
		req.ExpectedDischargeDate = &d
	}
	return req
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Beds is the part of bed.Service the seeder drives.
type Beds interface {
	SeedBeds(ctx context.Context, dept bed.Department, names []string) (int, error)
	GetBoard(ctx context.Context, dept bed.Department) ([]*bed.Bed, error)
	Admit(ctx context.Context, bedID uuid.UUID, req bed.AdmitRequest) (*bed.Patient, error)
}

// Seeder creates the layout and optional demo admissions. Seeding is
// idempotent for beds; demo admissions only go into free beds.
type Seeder struct {
	beds   Beds
	layout Layout
	now    func() time.Time
}

func NewSeeder(beds Beds, layout Layout) *Seeder {
	if layout == nil {
		layout = DefaultLayout()
	}
	return &Seeder{beds: beds, layout: layout, now: time.Now}
}

func (s *Seeder) SetClock(now func() time.Time) { s.now = now }

func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	res := &SeedResult{}

	for _, dept := range bed.Departments {
		names, ok := s.layout[dept]
		if !ok {
			continue
		}
		n, err := s.beds.SeedBeds(ctx, dept, names)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", dept, err)
		}
		res.BedsCreated += n
	}

	if cfg.DemoPatients > 0 {
		board, err := s.beds.GetBoard(ctx, "")
		if err != nil {
			return nil, err
		}
		gen := NewDataGenerator(cfg.Seed)
		now := s.now()
		for _, b := range board {
			if res.Admitted >= cfg.DemoPatients {
				break
			}
			if !b.Free() {
				continue
			}
			if _, err := s.beds.Admit(ctx, b.ID, gen.Admission(b.Department, now)); err != nil {
				return nil, fmt.Errorf("admit demo patient into %s/%s: %w", b.Department, b.Name, err)
			}
			res.Admitted++
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// ---------------------------------------------------------------------------
// SeedHandler: HTTP trigger
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding to administrators of non-production setups.
type SeedHandler struct {
	seeder *Seeder
	mu     sync.Mutex
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var cfg SeedConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
