package upstream

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/jwalitptl/adherence-portal/internal/model"
)

// isoLayout matches the millisecond UTC timestamps the API expects for dob.
const isoLayout = "2006-01-02T15:04:05.000Z"

type formField struct {
	name, value string
}

func multipartBody(fields []formField) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) Prescribe(ctx context.Context, cookie, patientID string, req model.PrescribeRequest) error {
	body, contentType, err := multipartBody([]formField{
		{"name", req.Name},
		{"dosage", strconv.FormatFloat(req.Dosage, 'f', -1, 64)},
		{"frequency", strconv.Itoa(req.Frequency)},
		{"quantity", strconv.Itoa(req.Quantity)},
		{"is_flexible_duration", strconv.FormatBool(req.IsFlexibleDuration)},
		{"duration", strconv.Itoa(req.Duration)},
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{
		op:          "prescribe",
		method:      http.MethodPost,
		path:        pathID("/prescribe", patientID),
		cookie:      cookie,
		body:        body,
		contentType: contentType,
	})
	return err
}

// NewPatient is a registration as sent to the API.
type NewPatient struct {
	Username string
	Name     string
	DOB      time.Time
	Sex      string
	Height   float64
	Weight   float64
}

func (c *Client) AddPatient(ctx context.Context, cookie string, p NewPatient) error {
	body, contentType, err := multipartBody([]formField{
		{"username", p.Username},
		{"name", p.Name},
		{"dob", p.DOB.UTC().Format(isoLayout)},
		{"sex", p.Sex},
		{"height", strconv.FormatFloat(p.Height, 'f', -1, 64)},
		{"weight", strconv.FormatFloat(p.Weight, 'f', -1, 64)},
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{
		op:          "add_patient",
		method:      http.MethodPost,
		path:        "/add_patient",
		cookie:      cookie,
		body:        body,
		contentType: contentType,
	})
	return err
}

// PickupMedication marks an active prescription as collected.
func (c *Client) PickupMedication(ctx context.Context, cookie string, activeID int64) error {
	_, err := c.do(ctx, request{
		op:     "pickup_medication",
		method: http.MethodPost,
		path:   "/pickup_meds/" + strconv.FormatInt(activeID, 10),
		cookie: cookie,
	})
	return err
}
