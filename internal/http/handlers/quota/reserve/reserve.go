// Package reserve реализует резервирование попытки отклика в месячной
// квоте водителя. Решение и инкремент счётчика атомарны на стороне
// хранилища, поэтому handler не делает повторных чтений.
package reserve

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/ridelink/entitlement-engine/internal/http/middlewarectx"
	"github.com/ridelink/entitlement-engine/internal/http/response"
	"github.com/ridelink/entitlement-engine/internal/lib/sl"
	"github.com/ridelink/entitlement-engine/internal/models"
)

// Request тело запроса на резервирование попытки.
type Request struct {
	SubjectID string `json:"subject_id" validate:"required"`
}

// Service описывает интерфейс квотного сервиса.
type Service interface {
	CheckAndReserve(ctx context.Context, subjectID string, now time.Time) (*models.QuotaDecision, error)
}

// Handler обрабатывает запросы на резервирование попытки отклика.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Зарезервировать попытку отклика
// @Description Атомарно проверяет месячную квоту и занимает одну попытку. Отказ по квоте несёт момент следующего сброса.
// @Tags Quota
// @Accept  json
// @Produce  json
// @Param Reserve body Request true "Субъект, запрашивающий попытку"
// @Success 200 {object} models.QuotaDecision "Попытка занята"
// @Failure 400 {object} response.ErrorResponse "Невалидное тело запроса"
// @Failure 403 {object} models.QuotaDecision "Субъект не является водителем"
// @Failure 429 {object} models.QuotaDecision "Квота месяца исчерпана"
// @Failure 500 {object} response.ErrorResponse "Хранилище или справочник недоступны"
// @Router /quota/reserve [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.quota.reserve"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			log.Error("invalid request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErrs))
			return
		}
		log.Error("failed to validate request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	decision, err := h.service.CheckAndReserve(r.Context(), req.SubjectID, middlewarectx.Now(r.Context()))
	if err != nil {
		log.Error("failed to reserve quota", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("storage unavailable"))
		return
	}

	if !decision.Allowed {
		log.Info("quota reservation denied",
			slog.String("subject_id", req.SubjectID), slog.String("reason", string(decision.Reason)))
		switch decision.Reason {
		case models.DenyNotEligible:
			w.WriteHeader(http.StatusForbidden)
		case models.DenyQuotaExceeded:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
		render.JSON(w, r, response.OKWithData(decision))
		return
	}

	log.Info("quota reserved",
		slog.String("subject_id", req.SubjectID), slog.Int("remaining", decision.Remaining))
	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.OKWithData(decision))
}
