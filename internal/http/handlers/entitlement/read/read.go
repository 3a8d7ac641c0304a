package read

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ridelink/entitlement-engine/internal/http/middlewarectx"
	"github.com/ridelink/entitlement-engine/internal/http/response"
	"github.com/ridelink/entitlement-engine/internal/lib/sl"
	"github.com/ridelink/entitlement-engine/internal/models"
)

// Service описывает интерфейс чтения снимка прав.
type Service interface {
	GetEntitlement(ctx context.Context, subjectID string, now time.Time) (*models.Entitlement, error)
}

// Handler отдаёт снимок прав субъекта.
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
// @Summary Получить снимок прав субъекта
// @Description Возвращает статус членства и флаг entitled, вычисленный на момент запроса. Неизвестный субъект получает статус none, а не 404.
// @Tags Entitlements
// @Produce  json
// @Param subjectID path string true "Идентификатор субъекта"
// @Success 200 {object} models.Entitlement
// @Failure 500 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /entitlements/{subjectID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.read"
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

	entitlement, err := h.service.GetEntitlement(r.Context(), subjectID, middlewarectx.Now(r.Context()))
	if err != nil {
		log.Error("failed to read entitlement", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("storage unavailable"))
		return
	}

	log.Info("entitlement read",
		slog.String("subject_id", subjectID), slog.Bool("entitled", entitlement.Entitled))
	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.OKWithData(entitlement))
}
