package patient

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/adherence-portal/internal/adherence"
	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/internal/upstream"
	apperrors "github.com/jwalitptl/adherence-portal/pkg/errors"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	patients   []model.PatientSummary
	patient    *model.Patient
	patientErr error
	records    []adherence.Record
	meds       []model.Medication
	logs       []model.PatientLog
	history    []model.PatientHistory
	catalog    []model.MedicationSummary
	readErr    error
	writeErr   error
	added      []upstream.NewPatient
	prescribe  []model.PrescribeRequest
}

func (f *fakeAPI) hit(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) ListPatients(context.Context, string) ([]model.PatientSummary, error) {
	f.hit("list")
	return f.patients, f.readErr
}

func (f *fakeAPI) SearchPatients(context.Context, string, string) ([]model.PatientSummary, error) {
	f.hit("search")
	return f.patients, f.readErr
}

func (f *fakeAPI) GetPatient(context.Context, string, string) (*model.Patient, error) {
	f.hit("patient")
	if f.patientErr != nil {
		return nil, f.patientErr
	}
	if f.patient == nil {
		return nil, &upstream.HTTPError{StatusCode: http.StatusNotFound}
	}
	return f.patient, nil
}

func (f *fakeAPI) GetAdherence(context.Context, string, string) ([]adherence.Record, error) {
	f.hit("adherence")
	return f.records, f.readErr
}

func (f *fakeAPI) GetMedications(context.Context, string, string) ([]model.Medication, error) {
	f.hit("meds")
	return f.meds, f.readErr
}

func (f *fakeAPI) GetLogs(context.Context, string, string) ([]model.PatientLog, error) {
	f.hit("logs")
	return f.logs, f.readErr
}

func (f *fakeAPI) GetHistory(context.Context, string, string) ([]model.PatientHistory, error) {
	f.hit("history")
	return f.history, f.readErr
}

func (f *fakeAPI) ListMedications(context.Context, string) ([]model.MedicationSummary, error) {
	f.hit("catalog")
	return f.catalog, f.readErr
}

func (f *fakeAPI) Prescribe(_ context.Context, _, _ string, req model.PrescribeRequest) error {
	f.prescribe = append(f.prescribe, req)
	return f.writeErr
}

func (f *fakeAPI) AddPatient(_ context.Context, _ string, p upstream.NewPatient) error {
	f.added = append(f.added, p)
	return f.writeErr
}

func (f *fakeAPI) PickupMedication(context.Context, string, int64) error {
	return f.writeErr
}

var sess = &session.Session{ID: "sid", Username: "drhouse", IsDoctor: true, UpstreamCookie: "session=abc"}

func newService(api *fakeAPI) *Service {
	svc := NewService(api, Config{}, metrics.New("test"), zerolog.Nop())
	svc.SetClock(func() time.Time { return time.Date(2024, 9, 26, 15, 0, 0, 0, time.UTC) })
	return svc
}

func day(s string) time.Time {
	t, err := time.Parse(adherence.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestListPatients_MiniAdherence(t *testing.T) {
	api := &fakeAPI{patients: []model.PatientSummary{{
		ID:   "17",
		Name: "John Doe",
		DOB:  day("2003-09-28"),
		Adherence: []adherence.Record{
			{Date: day("2024-09-26"), Doses: []adherence.Dose{{Taken: true}, {Taken: true}, {Taken: true}}},
			{Date: day("2024-09-25"), Doses: nil},
		},
	}}}

	roster := newService(api).ListPatients(context.Background(), sess)
	require.Len(t, roster, 1)
	assert.Equal(t, "09/28/2003", roster[0].DOBDisplay)
	require.Len(t, roster[0].MiniAdherence, 2)
	assert.Equal(t, adherence.TierHigh, roster[0].MiniAdherence[0].Tier)
	assert.Equal(t, adherence.TierNone, roster[0].MiniAdherence[1].Tier)
}

func TestListPatients_ErrorIsEmpty(t *testing.T) {
	roster := newService(&fakeAPI{readErr: upstream.ErrUpstream}).ListPatients(context.Background(), sess)
	assert.NotNil(t, roster)
	assert.Empty(t, roster)
}

func TestSearch(t *testing.T) {
	api := &fakeAPI{patients: []model.PatientSummary{{ID: "17", Name: "John Doe", DOB: day("1990-01-02")}}}
	svc := newService(api)

	assert.Empty(t, svc.Search(context.Background(), sess, "   "))
	assert.Equal(t, 0, api.count("search"), "blank query never reaches the API")

	res := svc.Search(context.Background(), sess, " john ")
	assert.Equal(t, []model.SearchResult{{ID: "17", Primary: "John Doe", Secondary: "01/02/1990"}}, res)
}

func TestGetPatientPage(t *testing.T) {
	api := &fakeAPI{
		patient: &model.Patient{ID: "17", Name: "John Doe"},
		records: []adherence.Record{
			{Date: day("2024-09-25"), Doses: []adherence.Dose{{Taken: true}, {Taken: false}, {Taken: true}}},
		},
		meds: []model.Medication{{ActiveID: 3, Name: "Panadol"}},
	}

	page, err := newService(api).GetPatientPage(context.Background(), sess, "17")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", page.Patient.Name)
	assert.Len(t, page.Medications, 1)
	assert.Equal(t, 5, page.Adherence.Grid.Weeks)

	cell, ok := page.Adherence.Grid.Lookup(day("2024-09-25"))
	require.True(t, ok)
	assert.Equal(t, adherence.StatusRatio, cell.Status)
	assert.Equal(t, 1, cell.Missed)

	for _, op := range []string{"patient", "adherence", "meds", "logs", "history"} {
		assert.Equal(t, 1, api.count(op), op)
	}
}

func TestGetPatientPage_MissingPatient(t *testing.T) {
	_, err := newService(&fakeAPI{}).GetPatientPage(context.Background(), sess, "404")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode())
}

func TestGetPatientPage_LookupErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing", &upstream.HTTPError{StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{"unauthorized", upstream.ErrUnauthorized, http.StatusUnauthorized},
		{"server", &upstream.HTTPError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"transport", upstream.ErrUpstream, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{patient: &model.Patient{}, patientErr: tt.err}
			page, err := newService(api).GetPatientPage(context.Background(), sess, "17")
			assert.Nil(t, page)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, appErr.StatusCode())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGetAdherenceGrid_Window(t *testing.T) {
	svc := newService(&fakeAPI{readErr: upstream.ErrUpstream})

	g := svc.GetAdherenceGrid(context.Background(), sess, "17", 0)
	assert.Equal(t, adherence.DefaultWindowDays, g.Grid.WindowDays)
	assert.Equal(t, "17", g.PatientID)
	assert.Len(t, g.View.Rows, adherence.DaysPerWeek)

	g = svc.GetAdherenceGrid(context.Background(), sess, "17", 10000)
	assert.Equal(t, MaxWindowDays, g.Grid.WindowDays)
}

func TestGetAdherenceGrid_UsesLocationForToday(t *testing.T) {
	svc := NewService(&fakeAPI{}, Config{Location: time.FixedZone("AEST", 10*3600)}, metrics.New("test"), zerolog.Nop())
	svc.SetClock(func() time.Time { return time.Date(2024, 9, 26, 20, 0, 0, 0, time.UTC) })

	g := svc.GetAdherenceGrid(context.Background(), sess, "17", 7)
	assert.Equal(t, "2024-09-27", g.Grid.Today.Format(adherence.DateLayout))
}

func TestListAvailableMedications_Cached(t *testing.T) {
	api := &fakeAPI{catalog: []model.MedicationSummary{{Name: "Panadol"}}}
	svc := newService(api)

	for i := 0; i < 3; i++ {
		assert.Len(t, svc.ListAvailableMedications(context.Background(), sess), 1)
	}
	assert.Equal(t, 1, api.count("catalog"))
}

func TestListAvailableMedications_EmptyNotCached(t *testing.T) {
	api := &fakeAPI{}
	svc := newService(api)

	svc.ListAvailableMedications(context.Background(), sess)
	svc.ListAvailableMedications(context.Background(), sess)
	assert.Equal(t, 2, api.count("catalog"))
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthorized", upstream.ErrUnauthorized, http.StatusUnauthorized},
		{"rejected", &upstream.HTTPError{StatusCode: http.StatusUnprocessableEntity}, http.StatusBadRequest},
		{"missing", &upstream.HTTPError{StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{"server", &upstream.HTTPError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"transport", upstream.ErrUpstream, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(&fakeAPI{writeErr: tt.err})
			err := svc.Prescribe(context.Background(), sess, "17", model.PrescribeRequest{Name: "Panadol"})
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, appErr.StatusCode())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAddPatient(t *testing.T) {
	api := &fakeAPI{}
	svc := newService(api)

	req := model.AddPatientRequest{Username: "jdoe", Name: "John Doe", DOB: "2003-09-28", Sex: "male", Height: 180, Weight: 75}
	require.NoError(t, svc.AddPatient(context.Background(), sess, req))
	require.Len(t, api.added, 1)
	assert.Equal(t, day("2003-09-28"), api.added[0].DOB)

	req.DOB = "2030-01-01"
	err := svc.AddPatient(context.Background(), sess, req)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode())
	assert.Len(t, api.added, 1)
}

func TestPickupMedication(t *testing.T) {
	assert.NoError(t, newService(&fakeAPI{}).PickupMedication(context.Background(), sess, 3))
}
