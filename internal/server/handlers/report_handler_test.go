package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/habitbloom/server/internal/domain/apperr"
	"github.com/habitbloom/server/internal/domain/models"
)

type stubVerifier struct {
	userID string
	err    error
}

func (s *stubVerifier) Verify(string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.userID, nil
}

type stubGenerator struct {
	report *models.MonthlyReport
	err    error
	calls  int

	gotUserID    string
	gotYearMonth string
}

func (s *stubGenerator) Generate(_ context.Context, userID, yearMonth string) (*models.MonthlyReport, error) {
	s.calls++
	s.gotUserID = userID
	s.gotYearMonth = yearMonth
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func sampleReport() *models.MonthlyReport {
	summary := make(map[string]string)
	detail := make(map[string]models.DetailSection)
	for _, dim := range models.AnalysisDimensions {
		summary[dim] = "요약"
		detail[dim] = models.DetailSection{Text: "상세", Actions: []string{"a", "b"}}
	}
	return &models.MonthlyReport{
		ID:              primitive.NewObjectID(),
		UserID:          "user-1",
		YearMonth:       "2024-05",
		Summary:         summary,
		Detail:          detail,
		Model:           "claude-3-haiku-20240307",
		PromptVersion:   "2025-07-monthly-v1",
		RegenerateCount: 1,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func performRequest(h *ReportHandler, authHeader, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/reports/monthly", h.Generate)

	req := httptest.NewRequest(http.MethodPost, "/api/reports/monthly", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateMissingAuthorization(t *testing.T) {
	gen := &stubGenerator{}
	h := NewReportHandler(&stubVerifier{userID: "user-1"}, gen, nil)

	w := performRequest(h, "", `{"yearMonth":"2024-05"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if gen.calls != 0 {
		t.Error("generator must not run without credentials")
	}
}

func TestGenerateInvalidToken(t *testing.T) {
	h := NewReportHandler(&stubVerifier{err: apperr.ErrAuth}, &stubGenerator{}, nil)

	w := performRequest(h, "Bearer bad-token", `{"yearMonth":"2024-05"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestGenerateMissingYearMonth(t *testing.T) {
	gen := &stubGenerator{}
	h := NewReportHandler(&stubVerifier{userID: "user-1"}, gen, nil)

	w := performRequest(h, "Bearer token", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if gen.calls != 0 {
		t.Error("generator must not run without yearMonth")
	}
}

func TestGenerateSuccessShape(t *testing.T) {
	gen := &stubGenerator{report: sampleReport()}
	h := NewReportHandler(&stubVerifier{userID: "user-1"}, gen, nil)

	w := performRequest(h, "Bearer token", `{"yearMonth":"2024-05"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if gen.gotUserID != "user-1" || gen.gotYearMonth != "2024-05" {
		t.Errorf("generator called with (%q, %q)", gen.gotUserID, gen.gotYearMonth)
	}

	var body struct {
		Success bool `json:"success"`
		Report  struct {
			ID                  string                          `json:"id"`
			YearMonth           string                          `json:"yearMonth"`
			Summary             map[string]string               `json:"summary"`
			Detail              map[string]models.DetailSection `json:"detail"`
			Model               string                          `json:"model"`
			RegenerateRemaining int                             `json:"regenerateRemaining"`
		} `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !body.Success {
		t.Error("success = false")
	}
	if body.Report.ID == "" {
		t.Error("report id missing")
	}
	if body.Report.YearMonth != "2024-05" {
		t.Errorf("yearMonth = %q", body.Report.YearMonth)
	}
	if body.Report.RegenerateRemaining != 2 {
		t.Errorf("regenerateRemaining = %d, want 2", body.Report.RegenerateRemaining)
	}
	if len(body.Report.Summary) != 5 || len(body.Report.Detail) != 5 {
		t.Errorf("summary/detail sizes = %d/%d, want 5/5", len(body.Report.Summary), len(body.Report.Detail))
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", &apperr.ValidationError{Field: "yearMonth", Reason: "expected YYYY-MM"}, http.StatusBadRequest},
		{"insufficient data", &apperr.InsufficientDataError{RecordDays: 2}, http.StatusBadRequest},
		{"quota exceeded", apperr.ErrQuotaExceeded, http.StatusBadRequest},
		{"model unavailable", apperr.ErrModelUnavailable, http.StatusInternalServerError},
		{"malformed output", &apperr.MalformedOutputError{Stage: apperr.StageBraceNotFound}, http.StatusInternalServerError},
		{"persistence", &apperr.PersistenceError{Op: "save report", Err: apperr.ErrConflict}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewReportHandler(&stubVerifier{userID: "user-1"}, &stubGenerator{err: tt.err}, nil)

			w := performRequest(h, "Bearer token", `{"yearMonth":"2024-05"}`)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if _, ok := body["error"]; !ok {
				t.Error("error message missing from body")
			}
		})
	}
}

func TestGenerateValidationMessageStaysKorean(t *testing.T) {
	h := NewReportHandler(&stubVerifier{userID: "user-1"},
		&stubGenerator{err: &apperr.ValidationError{Field: "yearMonth", Reason: "expected YYYY-MM"}}, nil)

	w := performRequest(h, "Bearer token", `{"yearMonth":"2024-5"}`)

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error != "yearMonth는 YYYY-MM 형식이어야 합니다" {
		t.Errorf("error = %q, want the fixed Korean message", body.Error)
	}
	if strings.Contains(body.Error, "expected") {
		t.Error("internal error detail must not reach the client")
	}
}

func TestGenerateInsufficientDataCarriesRecordDays(t *testing.T) {
	h := NewReportHandler(&stubVerifier{userID: "user-1"},
		&stubGenerator{err: &apperr.InsufficientDataError{RecordDays: 2}}, nil)

	w := performRequest(h, "Bearer token", `{"yearMonth":"2024-05"}`)

	var body struct {
		RecordDays int `json:"recordDays"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.RecordDays != 2 {
		t.Errorf("recordDays = %d, want 2", body.RecordDays)
	}
}
