package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailtriage/internal"
	"mailtriage/internal/pipeline"
)

type stubProcessor struct {
	outcome pipeline.Outcome
	err     error
	gotRaw  []byte
	gotName string
}

func (s *stubProcessor) ProcessUpload(_ context.Context, raw []byte, sourceName string) (pipeline.Outcome, error) {
	s.gotRaw = raw
	s.gotName = sourceName
	return s.outcome, s.err
}

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	srv := New(":0", &stubProcessor{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestProcessEmailSuccess(t *testing.T) {
	stub := &stubProcessor{
		outcome: pipeline.Outcome{
			Subject: "LC Fee Payment",
			Result: internal.ClassificationResult{
				RequestType:     "Fee Payment",
				SubRequestType:  "Letter of Credit Fee",
				Duplicate:       true,
				ConfidenceScore: "90%",
				AssignedTo:      "Trade Finance Team",
				Role:            "Trade Finance Expert",
				Context:         "LC fee request",
				ExtractedData:   map[string]string{"Amount": "$5000"},
			},
			ProcessedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	srv := New(":0", stub, nil)

	body, contentType := multipartUpload(t, "email_file", "sample.eml", "Subject: hi\r\n\r\nbody")
	req := httptest.NewRequest(http.MethodPost, "/process-email", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	if stub.gotName != "sample.eml" || !bytes.Contains(stub.gotRaw, []byte("Subject: hi")) {
		t.Fatalf("processor got name=%q raw=%q", stub.gotName, stub.gotRaw)
	}

	var resp struct {
		EmailSubject string                        `json:"email_subject"`
		Result       internal.ClassificationResult `json:"classification_result"`
		ProcessedAt  string                        `json:"processed_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.EmailSubject != "LC Fee Payment" || resp.Result.AssignedTo != "Trade Finance Team" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.ProcessedAt != "2026-09-01T10:00:00Z" {
		t.Fatalf("processed_at=%q", resp.ProcessedAt)
	}

	// The classification payload keeps its canonical key order.
	raw := rec.Body.String()
	if strings.Index(raw, `"request_type"`) > strings.Index(raw, `"DuplicateFlag"`) {
		t.Fatalf("key order broken: %s", raw)
	}
}

func TestProcessEmailMissingFile(t *testing.T) {
	srv := New(":0", &stubProcessor{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/process-email", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestProcessEmailWrongExtension(t *testing.T) {
	srv := New(":0", &stubProcessor{}, nil)
	body, contentType := multipartUpload(t, "email_file", "notes.txt", "hello")
	req := httptest.NewRequest(http.MethodPost, "/process-email", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestProcessEmailErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&pipeline.ProcessingError{Kind: pipeline.ErrModelUnavailable, Message: "model down"}, http.StatusBadGateway},
		{&pipeline.ProcessingError{Kind: pipeline.ErrMalformedModelOutput, Message: "bad json", Raw: "Invalid JSON"}, http.StatusUnprocessableEntity},
		{&pipeline.ProcessingError{Kind: pipeline.ErrGenericProcessing, Message: "boom"}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		srv := New(":0", &stubProcessor{err: tc.err}, nil)
		body, contentType := multipartUpload(t, "email_file", "sample.eml", "Subject: hi\r\n\r\nbody")
		req := httptest.NewRequest(http.MethodPost, "/process-email", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Fatalf("err=%v status=%d want %d", tc.err, rec.Code, tc.status)
		}
	}
}

func TestMalformedOutputResponseCarriesRaw(t *testing.T) {
	stub := &stubProcessor{err: &pipeline.ProcessingError{
		Kind: pipeline.ErrMalformedModelOutput, Message: "parse model response", Raw: "Invalid JSON",
	}}
	srv := New(":0", stub, nil)

	body, contentType := multipartUpload(t, "email_file", "sample.eml", "Subject: hi\r\n\r\nbody")
	req := httptest.NewRequest(http.MethodPost, "/process-email", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["raw_response"] != "Invalid JSON" {
		t.Fatalf("resp=%v", resp)
	}
}
