// Package webhook реализует HTTP-обработчик уведомлений платёжного
// провайдера. Провайдер доставляет события минимум по одному разу и
// ретраит всё, что не получило финального ответа, поэтому коды ответов
// подобраны строго: 4xx — событие непроцессируемо и повторять его
// бессмысленно, 5xx — хранилище недоступно и повтор нужен.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

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

// Handler обрабатывает webhook платёжного провайдера.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string // Секрет для проверки подписи
}

// New создает новый Handler с переданными логгером, сервисом и секретом.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// verifySignature проверяет подпись webhook из заголовка X-Api-Signature.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Принять уведомление платёжного провайдера
// @Description Проверяет подпись, нормализует событие и применяет его к хранилищу членств. Повторные доставки подтверждаются как no-op.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Success 200 {object} models.ApplyResult "Событие применено, повтор или неизвестная подписка"
// @Failure 400 {object} response.ErrorResponse "Нечитаемое тело запроса"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 422 {object} response.ErrorResponse "Событие без обязательных полей"
// @Failure 500 {object} response.ErrorResponse "Хранилище недоступно, нужен повтор"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unreadable body"))
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid or missing signature"))
		return
	}

	var payload events.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid payload"))
		return
	}

	event, err := events.FromWebhook(&payload)
	if errors.Is(err, events.ErrUnsupportedEvent) {
		// Неинтересные события подтверждаются, чтобы провайдер их не
		// ретраил.
		log.Info("ignored webhook event", slog.String("event", payload.Event))
		w.WriteHeader(http.StatusOK)
		render.JSON(w, r, response.OKWithData(map[string]any{"outcome": "ignored"}))
		return
	}
	if err != nil {
		log.Error("malformed webhook event", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("malformed event"))
		return
	}

	result, err := h.service.ApplyPaymentEvent(r.Context(), *event, middlewarectx.Now(r.Context()))
	if err != nil {
		if reconciler.IsRetryable(err) {
			log.Error("failed to apply event, retry expected", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("storage unavailable"))
			return
		}
		log.Error("unprocessable event", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("malformed event"))
		return
	}

	log.Info("webhook processed",
		slog.String("event", payload.Event), slog.String("outcome", string(result.Outcome)))
	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.OKWithData(result))
}
