// Package confirm реализует синхронное подтверждение покупки, которое
// клиент отправляет после редиректа с чекаута. Несёт те же ключи, что и
// webhook провайдера, и идемпотентно с ним: кто пришёл вторым, получает
// duplicate.
package confirm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/ridelink/entitlement-engine/internal/events"
	"github.com/ridelink/entitlement-engine/internal/http/middlewarectx"
	"github.com/ridelink/entitlement-engine/internal/http/response"
	"github.com/ridelink/entitlement-engine/internal/lib/sl"
	"github.com/ridelink/entitlement-engine/internal/models"
	"github.com/ridelink/entitlement-engine/internal/services/reconciler"
)

// Service описывает интерфейс сверки платёжных событий.
type Service interface {
	ApplyPaymentEvent(ctx context.Context, event models.PaymentEvent, now time.Time) (*models.ApplyResult, error)
}

// Handler обрабатывает клиентские подтверждения покупок.
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
// @Summary Подтвердить покупку после чекаута
// @Description Применяет покупку членства или открытия контакта теми же правилами, что и webhook. Повтор даёт duplicate.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param Confirm body events.ConfirmRequest true "Данные покупки"
// @Success 200 {object} models.ApplyResult
// @Failure 400 {object} response.ErrorResponse "Невалидное тело запроса"
// @Failure 422 {object} response.ErrorResponse "Покупка без обязательных полей"
// @Failure 500 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /payments/confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.confirm"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req events.ConfirmRequest
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

	event, err := events.FromConfirm(&req)
	if err != nil {
		log.Error("malformed confirm request", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("malformed purchase"))
		return
	}

	result, err := h.service.ApplyPaymentEvent(r.Context(), *event, middlewarectx.Now(r.Context()))
	if err != nil {
		if reconciler.IsRetryable(err) {
			log.Error("failed to apply purchase", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("storage unavailable"))
			return
		}
		log.Error("unprocessable purchase", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("malformed purchase"))
		return
	}

	log.Info("purchase confirmed",
		slog.String("subject_id", result.SubjectID), slog.String("outcome", string(result.Outcome)))
	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.OKWithData(result))
}
