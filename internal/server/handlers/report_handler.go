package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/habitbloom/server/internal/domain/apperr"
	"github.com/habitbloom/server/internal/domain/models"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ReportGenerator runs one monthly report generation.
type ReportGenerator interface {
	Generate(ctx context.Context, userID, yearMonth string) (*models.MonthlyReport, error)
}

// ReportHandler adapts the report service to HTTP.
type ReportHandler struct {
	verifier TokenVerifier
	svc      ReportGenerator
	logger   *zap.Logger
}

// NewReportHandler constructs the HTTP handler adapter.
func NewReportHandler(verifier TokenVerifier, svc ReportGenerator, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{verifier: verifier, svc: svc, logger: logger}
}

type generateRequest struct {
	YearMonth string `json:"yearMonth"`
}

type reportResponse struct {
	ID                  string                          `json:"id"`
	YearMonth           string                          `json:"yearMonth"`
	Summary             map[string]string               `json:"summary"`
	Detail              map[string]models.DetailSection `json:"detail"`
	Model               string                          `json:"model"`
	RegenerateRemaining int                             `json:"regenerateRemaining"`
	CreatedAt           time.Time                       `json:"createdAt"`
	UpdatedAt           time.Time                       `json:"updatedAt"`
}

// Generate handles POST /api/reports/monthly.
func (h *ReportHandler) Generate(c *gin.Context) {
	userID, err := h.authenticate(c)
	if err != nil {
		h.logger.Warn("rejected unauthenticated report request", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.YearMonth == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "yearMonth is required"})
		return
	}

	persisted, err := h.svc.Generate(c.Request.Context(), userID, req.YearMonth)
	if err != nil {
		h.writeError(c, userID, req.YearMonth, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report": reportResponse{
			ID:                  persisted.ID.Hex(),
			YearMonth:           persisted.YearMonth,
			Summary:             persisted.Summary,
			Detail:              persisted.Detail,
			Model:               persisted.Model,
			RegenerateRemaining: persisted.RegenerateRemaining(),
			CreatedAt:           persisted.CreatedAt,
			UpdatedAt:           persisted.UpdatedAt,
		},
	})
}

func (h *ReportHandler) authenticate(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", apperr.ErrAuth
	}
	return h.verifier.Verify(token)
}

// writeError maps the error taxonomy onto statuses and user-safe messages.
// Raw provider bodies and stack detail stay in the logs.
func (h *ReportHandler) writeError(c *gin.Context, userID, yearMonth string, err error) {
	log := h.logger.With(
		zap.String("user_id", userID),
		zap.String("year_month", yearMonth),
		zap.Error(err))

	var validationErr *apperr.ValidationError
	var insufficientErr *apperr.InsufficientDataError
	var malformedErr *apperr.MalformedOutputError
	var persistErr *apperr.PersistenceError

	switch {
	case errors.As(err, &validationErr):
		log.Warn("rejected invalid request field", zap.String("field", validationErr.Field))
		c.JSON(http.StatusBadRequest, gin.H{"error": "yearMonth는 YYYY-MM 형식이어야 합니다"})
	case errors.As(err, &insufficientErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "최소 3일 이상의 기록이 필요합니다",
			"recordDays": insufficientErr.RecordDays,
		})
	case errors.Is(err, apperr.ErrQuotaExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": "이번 달 리포트 생성 횟수를 모두 사용했습니다"})
	case errors.Is(err, apperr.ErrModelUnavailable):
		log.Error("model provider unavailable")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "리포트 생성에 실패했습니다. 잠시 후 다시 시도해 주세요"})
	case errors.As(err, &malformedErr):
		log.Error("model output rejected",
			zap.String("stage", string(malformedErr.Stage)),
			zap.String("raw_output", malformedErr.Raw))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "리포트 생성에 실패했습니다. 잠시 후 다시 시도해 주세요"})
	case errors.As(err, &persistErr), errors.Is(err, apperr.ErrConflict):
		log.Error("report persistence failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "리포트 저장에 실패했습니다"})
	default:
		log.Error("report generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "리포트 생성에 실패했습니다"})
	}
}
