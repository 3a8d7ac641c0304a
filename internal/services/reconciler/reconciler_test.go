package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ridelink/entitlement-engine/internal/models"
	"github.com/ridelink/entitlement-engine/internal/rabbitmq"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ApplyActivation(ctx context.Context, membership models.Membership) (bool, error) {
	args := m.Called(ctx, membership)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) ApplyRenewal(ctx context.Context, ref string, now, periodAnchor time.Time) (string, bool, error) {
	args := m.Called(ctx, ref, now, periodAnchor)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *RepoMock) ApplyRenewalFailure(ctx context.Context, ref string, now time.Time) (string, bool, error) {
	args := m.Called(ctx, ref, now)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *RepoMock) ApplyCancellation(ctx context.Context, ref string, now time.Time) (string, bool, error) {
	args := m.Called(ctx, ref, now)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *RepoMock) HasMembershipByRef(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) SaveUnlockPayment(ctx context.Context, p models.UnlockPayment) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishMembershipChanged(msg rabbitmq.MembershipChanged) error {
	return m.Called(msg).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func activationEvent() models.PaymentEvent {
	return models.PaymentEvent{
		Kind:            models.EventActivation,
		SubjectID:       "driver-1",
		SubscriptionRef: "sub-42",
		ValidFrom:       time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestApplyPaymentEvent_Activation(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(r *RepoMock, c *CacheMock, p *PublisherMock)
		wantOutcome models.ApplyOutcome
	}{
		{
			name: "активация записывает целевое состояние",
			setupMocks: func(r *RepoMock, c *CacheMock, p *PublisherMock) {
				r.On("ApplyActivation", mock.Anything, mock.MatchedBy(func(m models.Membership) bool {
					return m.SubjectID == "driver-1" &&
						m.Status == models.StatusActive &&
						m.Origin == models.OriginPaid &&
						*m.ExternalSubscriptionRef == "sub-42" &&
						m.ExpiresAt.Equal(time.Date(2027, 8, 1, 10, 0, 0, 0, time.UTC))
				})).Return(true, nil).Once()
				c.On("Invalidate", mock.Anything, "entitlement:driver-1").Return(nil).Once()
				p.On("PublishMembershipChanged", mock.Anything).Return(nil).Once()
			},
			wantOutcome: models.OutcomeApplied,
		},
		{
			name: "повторная доставка сходится в no-op",
			setupMocks: func(r *RepoMock, _ *CacheMock, _ *PublisherMock) {
				r.On("ApplyActivation", mock.Anything, mock.Anything).Return(false, nil).Once()
			},
			wantOutcome: models.OutcomeDuplicate,
		},
		{
			name: "сбой кеша и очереди не откатывает применённое событие",
			setupMocks: func(r *RepoMock, c *CacheMock, p *PublisherMock) {
				r.On("ApplyActivation", mock.Anything, mock.Anything).Return(true, nil).Once()
				c.On("Invalidate", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
				p.On("PublishMembershipChanged", mock.Anything).Return(errors.New("amqp down")).Once()
			},
			wantOutcome: models.OutcomeApplied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			c := new(CacheMock)
			pub := new(PublisherMock)
			tt.setupMocks(repo, c, pub)
			svc := New(repo, c, pub, newNoopLogger())

			result, err := svc.ApplyPaymentEvent(context.Background(), activationEvent(), now)

			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, result.Outcome)
			repo.AssertExpectations(t)
			c.AssertExpectations(t)
			pub.AssertExpectations(t)
		})
	}
}

func TestApplyPaymentEvent_RefKeyedEvents(t *testing.T) {
	anchor := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	event := models.PaymentEvent{
		Kind:            models.EventRenewalSucceeded,
		SubscriptionRef: "sub-42",
		PeriodAnchor:    anchor,
	}

	t.Run("продление применилось", func(t *testing.T) {
		repo := new(RepoMock)
		c := new(CacheMock)
		pub := new(PublisherMock)
		repo.On("ApplyRenewal", mock.Anything, "sub-42", now, anchor).Return("driver-1", true, nil).Once()
		c.On("Invalidate", mock.Anything, "entitlement:driver-1").Return(nil).Once()
		pub.On("PublishMembershipChanged", mock.MatchedBy(func(msg rabbitmq.MembershipChanged) bool {
			return msg.SubjectID == "driver-1" && msg.Status == "active"
		})).Return(nil).Once()
		svc := New(repo, c, pub, newNoopLogger())

		result, err := svc.ApplyPaymentEvent(context.Background(), event, now)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, result.Outcome)
		assert.Equal(t, "driver-1", result.SubjectID)
		repo.AssertExpectations(t)
	})

	t.Run("повтор продления по известной подписке", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("ApplyRenewal", mock.Anything, "sub-42", now, anchor).Return("", false, nil).Once()
		repo.On("HasMembershipByRef", mock.Anything, "sub-42").Return(true, nil).Once()
		svc := New(repo, new(CacheMock), new(PublisherMock), newNoopLogger())

		result, err := svc.ApplyPaymentEvent(context.Background(), event, now)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeDuplicate, result.Outcome)
	})

	t.Run("событие по неизвестной подписке подтверждается без применения", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("ApplyRenewal", mock.Anything, "sub-42", now, anchor).Return("", false, nil).Once()
		repo.On("HasMembershipByRef", mock.Anything, "sub-42").Return(false, nil).Once()
		svc := New(repo, new(CacheMock), new(PublisherMock), newNoopLogger())

		result, err := svc.ApplyPaymentEvent(context.Background(), event, now)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeUnmatched, result.Outcome)
	})

	t.Run("отмена не трогает срок членства", func(t *testing.T) {
		repo := new(RepoMock)
		c := new(CacheMock)
		pub := new(PublisherMock)
		repo.On("ApplyCancellation", mock.Anything, "sub-42", now).Return("driver-1", true, nil).Once()
		c.On("Invalidate", mock.Anything, mock.Anything).Return(nil).Once()
		pub.On("PublishMembershipChanged", mock.MatchedBy(func(msg rabbitmq.MembershipChanged) bool {
			return msg.Status == "canceled"
		})).Return(nil).Once()
		svc := New(repo, c, pub, newNoopLogger())

		result, err := svc.ApplyPaymentEvent(context.Background(), models.PaymentEvent{
			Kind:            models.EventCancellation,
			SubscriptionRef: "sub-42",
		}, now)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, result.Outcome)
	})
}

func TestApplyPaymentEvent_Unlock(t *testing.T) {
	event := models.PaymentEvent{
		Kind:          models.EventUnlock,
		SubjectID:     "driver-1",
		BeneficiaryID: "passenger-9",
		Amount:        15000,
		Currency:      "RUB",
		SessionRef:    "pay-777",
	}

	t.Run("платёж записан", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("SaveUnlockPayment", mock.Anything, mock.MatchedBy(func(p models.UnlockPayment) bool {
			return p.SubjectID == "driver-1" && p.BeneficiaryID == "passenger-9" &&
				p.Status == models.UnlockCompleted
		})).Return(true, nil).Once()
		svc := New(repo, new(CacheMock), new(PublisherMock), newNoopLogger())

		result, err := svc.ApplyPaymentEvent(context.Background(), event, now)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, result.Outcome)
	})

	t.Run("конфликт естественного ключа это успех", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("SaveUnlockPayment", mock.Anything, mock.Anything).Return(false, nil).Once()
		svc := New(repo, new(CacheMock), new(PublisherMock), newNoopLogger())

		result, err := svc.ApplyPaymentEvent(context.Background(), event, now)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeDuplicate, result.Outcome)
	})
}

func TestApplyPaymentEvent_Errors(t *testing.T) {
	t.Run("ошибка хранилища поднимается без изменений", func(t *testing.T) {
		repo := new(RepoMock)
		storageErr := errors.New("connection refused")
		repo.On("ApplyActivation", mock.Anything, mock.Anything).Return(false, storageErr).Once()
		svc := New(repo, new(CacheMock), new(PublisherMock), newNoopLogger())

		_, err := svc.ApplyPaymentEvent(context.Background(), activationEvent(), now)

		require.ErrorIs(t, err, storageErr)
		assert.True(t, IsRetryable(err))
	})

	t.Run("событие без корреляционных полей непроцессируемо", func(t *testing.T) {
		svc := New(new(RepoMock), new(CacheMock), new(PublisherMock), newNoopLogger())

		_, err := svc.ApplyPaymentEvent(context.Background(), models.PaymentEvent{
			Kind: models.EventRenewalSucceeded,
		}, now)

		require.ErrorIs(t, err, models.ErrMalformedEvent)
		assert.False(t, IsRetryable(err))
	})
}
