package unlocks

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ridelink/entitlement-engine/internal/http/response"
	"github.com/ridelink/entitlement-engine/internal/lib/sl"
	"github.com/ridelink/entitlement-engine/internal/models"
)

// Service описывает интерфейс чтения открытых контактов.
type Service interface {
	ListUnlocks(ctx context.Context, subjectID string) ([]*models.UnlockPayment, error)
}

// Handler отдаёт список купленных открытий контактов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список открытых контактов субъекта
// @Tags Entitlements
// @Produce  json
// @Param subjectID path string true "Идентификатор субъекта"
// @Success 200 {array} models.UnlockPayment
// @Failure 500 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /entitlements/{subjectID}/unlocks [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.unlocks"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subjectID := chi.URLParam(r, "subjectID")
	if subjectID == "" {
		log.Error("missing subjectID in path")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing subjectID"))
		return
	}

	unlocks, err := h.service.ListUnlocks(r.Context(), subjectID)
	if err != nil {
		log.Error("failed to list unlocks", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("storage unavailable"))
		return
	}

	log.Info("unlocks listed", slog.String("subject_id", subjectID), slog.Int("count", len(unlocks)))
	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"list_count": len(unlocks),
		"unlocks":    unlocks,
	}))
}
