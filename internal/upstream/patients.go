package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jwalitptl/adherence-portal/internal/adherence"
	"github.com/jwalitptl/adherence-portal/internal/model"
)

// ListPatients returns the roster, each row with its recent adherence days.
func (c *Client) ListPatients(ctx context.Context, cookie string) ([]model.PatientSummary, error) {
	var out []patientDTO
	if _, err := c.do(ctx, request{
		op:     "list_patients",
		method: http.MethodGet,
		path:   "/patients",
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	return toSummaries(out), nil
}

func (c *Client) SearchPatients(ctx context.Context, cookie, name string) ([]model.PatientSummary, error) {
	var out []patientDTO
	if _, err := c.do(ctx, request{
		op:     "search_patients",
		method: http.MethodGet,
		path:   "/search_patients",
		query:  url.Values{"name": {name}},
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	return toSummaries(out), nil
}

func (c *Client) GetPatient(ctx context.Context, cookie, id string) (*model.Patient, error) {
	var out patientDTO
	if _, err := c.do(ctx, request{
		op:     "get_patient",
		method: http.MethodGet,
		path:   pathID("/patient", id),
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	p := out.toPatient()
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (c *Client) GetAdherence(ctx context.Context, cookie, id string) ([]adherence.Record, error) {
	var out adherenceResponse
	if _, err := c.do(ctx, request{
		op:     "get_adherence",
		method: http.MethodGet,
		path:   pathID("/adherence", id),
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	return toRecords(out.Adherence), nil
}

func (c *Client) GetMedications(ctx context.Context, cookie, id string) ([]model.Medication, error) {
	var out []medicationDTO
	if _, err := c.do(ctx, request{
		op:     "get_medications",
		method: http.MethodGet,
		path:   pathID("/patient_meds", id),
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	meds := make([]model.Medication, len(out))
	for i, m := range out {
		meds[i] = m.toMedication()
	}
	return meds, nil
}

func (c *Client) GetLogs(ctx context.Context, cookie, id string) ([]model.PatientLog, error) {
	var out []logDTO
	if _, err := c.do(ctx, request{
		op:     "get_logs",
		method: http.MethodGet,
		path:   pathID("/get_logs", id),
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	logs := make([]model.PatientLog, len(out))
	for i, l := range out {
		logs[i] = model.PatientLog{
			ID:        l.LogsID,
			PatientID: string(l.PatientID),
			Date:      parseTime(l.Date),
			Content:   l.Content,
		}
	}
	return logs, nil
}

func (c *Client) GetHistory(ctx context.Context, cookie, id string) ([]model.PatientHistory, error) {
	var out []historyDTO
	if _, err := c.do(ctx, request{
		op:     "get_history",
		method: http.MethodGet,
		path:   pathID("/history", id),
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	history := make([]model.PatientHistory, len(out))
	for i, h := range out {
		history[i] = model.PatientHistory{
			ID:        h.HistoryID,
			PatientID: string(h.PatientID),
			Date:      parseTime(h.Date),
			Notes:     h.Notes,
		}
	}
	return history, nil
}

// ListMedications returns the catalog of prescribable medicines.
func (c *Client) ListMedications(ctx context.Context, cookie string) ([]model.MedicationSummary, error) {
	var out []model.MedicationSummary
	if _, err := c.do(ctx, request{
		op:     "list_medications",
		method: http.MethodGet,
		path:   "/all_medicines",
		cookie: cookie,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.MedicationSummary{}
	}
	return out, nil
}
