package patient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/adherence-portal/internal/adherence"
	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/upstream"
	apperrors "github.com/jwalitptl/adherence-portal/pkg/errors"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

// MaxWindowDays bounds the adherence window a caller may ask for.
const MaxWindowDays = 366

const catalogKey = "catalog"

// API is the part of the patient API client the service reads and writes through.
type API interface {
	ListPatients(ctx context.Context, cookie string) ([]model.PatientSummary, error)
	SearchPatients(ctx context.Context, cookie, name string) ([]model.PatientSummary, error)
	GetPatient(ctx context.Context, cookie, id string) (*model.Patient, error)
	GetAdherence(ctx context.Context, cookie, id string) ([]adherence.Record, error)
	GetMedications(ctx context.Context, cookie, id string) ([]model.Medication, error)
	GetLogs(ctx context.Context, cookie, id string) ([]model.PatientLog, error)
	GetHistory(ctx context.Context, cookie, id string) ([]model.PatientHistory, error)
	ListMedications(ctx context.Context, cookie string) ([]model.MedicationSummary, error)
	Prescribe(ctx context.Context, cookie, patientID string, req model.PrescribeRequest) error
	AddPatient(ctx context.Context, cookie string, p upstream.NewPatient) error
	PickupMedication(ctx context.Context, cookie string, activeID int64) error
}

type Config struct {
	WindowDays int
	CatalogTTL time.Duration
	// Location decides which calendar day is "today" for the grid.
	Location *time.Location
}

type Service struct {
	api     API
	cfg     Config
	catalog *cache.Cache
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(api API, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = adherence.DefaultWindowDays
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if m == nil {
		m = metrics.New("portal")
	}
	return &Service{
		api:     api,
		cfg:     cfg,
		catalog: cache.New(cfg.CatalogTTL, 2*cfg.CatalogTTL),
		metrics: m,
		logger:  logger.With().Str("service", "patient").Logger(),
		now:     time.Now,
	}
}

// SetClock replaces the clock used to pick the grid's last day.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) today() time.Time {
	return s.now().In(s.cfg.Location)
}

// Reads fall back to an empty value and log; the page renders what it can.
func (s *Service) warn(err error, op, patientID string) {
	ev := s.logger.Warn().Err(err).Str("operation", op)
	if patientID != "" {
		ev = ev.Str("patient_id", patientID)
	}
	ev.Msg("Patient API read failed, using empty result")
}

// ListPatients returns the roster with a compact adherence strip per patient.
func (s *Service) ListPatients(ctx context.Context, sess *session.Session) []model.RosterEntry {
	patients, err := s.api.ListPatients(ctx, sess.UpstreamCookie)
	if err != nil {
		s.warn(err, "list_patients", "")
		return []model.RosterEntry{}
	}
	out := make([]model.RosterEntry, len(patients))
	for i, p := range patients {
		out[i] = model.RosterEntry{
			PatientSummary: p,
			DOBDisplay:     formatDOB(p.DOB),
			MiniAdherence:  adherence.Summarize(p.Adherence),
		}
	}
	return out
}

// Search matches patients by name. A blank query returns nothing without
// calling the API.
func (s *Service) Search(ctx context.Context, sess *session.Session, query string) []model.SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.SearchResult{}
	}
	patients, err := s.api.SearchPatients(ctx, sess.UpstreamCookie, query)
	if err != nil {
		s.warn(err, "search_patients", "")
		return []model.SearchResult{}
	}
	out := make([]model.SearchResult, len(patients))
	for i, p := range patients {
		out[i] = model.SearchResult{
			ID:        p.ID,
			Primary:   p.Name,
			Secondary: formatDOB(p.DOB),
		}
	}
	return out
}

func formatDOB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DOBLayout)
}

// GetPatientPage loads every section of the patient screen concurrently.
// Only a missing patient fails the page; other sections fall back to empty.
func (s *Service) GetPatientPage(ctx context.Context, sess *session.Session, id string) (*model.PatientPage, error) {
	var (
		wg         sync.WaitGroup
		patient    *model.Patient
		patientErr error
		grid       model.AdherenceGrid
		meds       []model.Medication
		logs       []model.PatientLog
		history    []model.PatientHistory
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		patient, patientErr = s.api.GetPatient(ctx, sess.UpstreamCookie, id)
	}()
	go func() {
		defer wg.Done()
		grid = s.GetAdherenceGrid(ctx, sess, id, 0)
	}()
	go func() {
		defer wg.Done()
		meds = s.GetMedications(ctx, sess, id)
	}()
	go func() {
		defer wg.Done()
		logs = s.GetLogs(ctx, sess, id)
	}()
	go func() {
		defer wg.Done()
		history = s.GetHistory(ctx, sess, id)
	}()
	wg.Wait()

	switch {
	case patientErr == nil && patient == nil, upstream.IsNotFound(patientErr):
		return nil, apperrors.NotFound("patient", patientErr)
	case errors.Is(patientErr, upstream.ErrUnauthorized):
		return nil, apperrors.Unauthorized(patientErr)
	case patientErr != nil:
		s.logger.Error().Err(patientErr).Str("patient_id", id).Msg("Patient lookup failed")
		return nil, apperrors.BadGateway("patient lookup failed", patientErr)
	}

	return &model.PatientPage{
		Patient:     patient,
		Adherence:   grid,
		Medications: meds,
		Logs:        logs,
		History:     history,
	}, nil
}

// GetAdherenceGrid builds the calendar grid ending today. windowDays <= 0
// uses the configured window.
func (s *Service) GetAdherenceGrid(ctx context.Context, sess *session.Session, id string, windowDays int) model.AdherenceGrid {
	if windowDays <= 0 {
		windowDays = s.cfg.WindowDays
	}
	if windowDays > MaxWindowDays {
		windowDays = MaxWindowDays
	}

	records, err := s.api.GetAdherence(ctx, sess.UpstreamCookie, id)
	if err != nil {
		s.warn(err, "get_adherence", id)
		records = nil
	}

	grid := adherence.Build(records, s.today(), windowDays)
	s.metrics.GridBuilds.Inc()
	s.metrics.GridRecords.Observe(float64(len(records)))

	return model.AdherenceGrid{
		PatientID: id,
		Grid:      grid,
		View:      adherence.Render(grid),
	}
}

func (s *Service) GetMedications(ctx context.Context, sess *session.Session, id string) []model.Medication {
	meds, err := s.api.GetMedications(ctx, sess.UpstreamCookie, id)
	if err != nil {
		s.warn(err, "get_medications", id)
		return []model.Medication{}
	}
	return meds
}

func (s *Service) GetLogs(ctx context.Context, sess *session.Session, id string) []model.PatientLog {
	logs, err := s.api.GetLogs(ctx, sess.UpstreamCookie, id)
	if err != nil {
		s.warn(err, "get_logs", id)
		return []model.PatientLog{}
	}
	return logs
}

func (s *Service) GetHistory(ctx context.Context, sess *session.Session, id string) []model.PatientHistory {
	history, err := s.api.GetHistory(ctx, sess.UpstreamCookie, id)
	if err != nil {
		s.warn(err, "get_history", id)
		return []model.PatientHistory{}
	}
	return history
}

// ListAvailableMedications returns the prescribable catalog. Non-empty
// results are cached for the configured TTL.
func (s *Service) ListAvailableMedications(ctx context.Context, sess *session.Session) []model.MedicationSummary {
	if v, ok := s.catalog.Get(catalogKey); ok {
		return v.([]model.MedicationSummary)
	}
	meds, err := s.api.ListMedications(ctx, sess.UpstreamCookie)
	if err != nil {
		s.warn(err, "list_medications", "")
		return []model.MedicationSummary{}
	}
	if len(meds) > 0 {
		s.catalog.SetDefault(catalogKey, meds)
	}
	return meds
}

func (s *Service) Prescribe(ctx context.Context, sess *session.Session, patientID string, req model.PrescribeRequest) error {
	if err := s.api.Prescribe(ctx, sess.UpstreamCookie, patientID, req); err != nil {
		return writeError("prescription", err)
	}
	s.logger.Info().
		Str("patient_id", patientID).
		Str("medication", req.Name).
		Str("username", sess.Username).
		Msg("Medication prescribed")
	return nil
}

func (s *Service) AddPatient(ctx context.Context, sess *session.Session, req model.AddPatientRequest) error {
	dob, err := req.BirthDate()
	if err != nil {
		return apperrors.BadRequest("invalid date of birth", err)
	}
	if dob.After(s.today()) {
		return apperrors.BadRequest("date of birth is in the future", nil)
	}

	err = s.api.AddPatient(ctx, sess.UpstreamCookie, upstream.NewPatient{
		Username: req.Username,
		Name:     req.Name,
		DOB:      dob,
		Sex:      req.Sex,
		Height:   req.Height,
		Weight:   req.Weight,
	})
	if err != nil {
		return writeError("patient registration", err)
	}
	s.logger.Info().Str("patient_username", req.Username).Str("username", sess.Username).Msg("Patient added")
	return nil
}

func (s *Service) PickupMedication(ctx context.Context, sess *session.Session, activeID int64) error {
	if err := s.api.PickupMedication(ctx, sess.UpstreamCookie, activeID); err != nil {
		return writeError("pickup", err)
	}
	return nil
}

// writeError maps a failed write to the status the portal answers with.
func writeError(what string, err error) error {
	if errors.Is(err, upstream.ErrUnauthorized) {
		return apperrors.Unauthorized(err)
	}
	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
		if httpErr.StatusCode == http.StatusNotFound {
			return apperrors.NotFound(what+" target", err)
		}
		return apperrors.BadRequest(what+" rejected", err)
	}
	return apperrors.BadGateway(what+" failed", err)
}
