package entitlement

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
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetMembership(ctx context.Context, subjectID string) (*models.Membership, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *RepoMock) ListUnlockPayments(ctx context.Context, subjectID string) ([]*models.UnlockPayment, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UnlockPayment), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var now = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func TestGetEntitlement(t *testing.T) {
	ref := "sub-42"

	tests := []struct {
		name       string
		membership *models.Membership
		repoErr    error
		want       func(t *testing.T, e *models.Entitlement)
	}{
		{
			name: "действующее членство",
			membership: &models.Membership{
				SubjectID:               "driver-1",
				Status:                  models.StatusActive,
				Origin:                  models.OriginPaid,
				ExternalSubscriptionRef: &ref,
				ExpiresAt:               now.AddDate(0, 6, 0),
			},
			want: func(t *testing.T, e *models.Entitlement) {
				assert.True(t, e.Entitled)
				assert.Equal(t, models.StatusActive, e.Status)
			},
		},
		{
			name: "отменённое членство с неистёкшим сроком сохраняет доступ",
			membership: &models.Membership{
				SubjectID: "driver-1",
				Status:    models.StatusCanceled,
				Origin:    models.OriginPaid,
				ExpiresAt: now.AddDate(0, 1, 0),
			},
			want: func(t *testing.T, e *models.Entitlement) {
				assert.True(t, e.Entitled)
				assert.Equal(t, models.StatusCanceled, e.Status)
			},
		},
		{
			name: "active в хранилище, но срок прошёл",
			membership: &models.Membership{
				SubjectID: "driver-1",
				Status:    models.StatusActive,
				Origin:    models.OriginPaid,
				ExpiresAt: now.AddDate(0, 0, -1),
			},
			want: func(t *testing.T, e *models.Entitlement) {
				assert.False(t, e.Entitled)
				assert.Equal(t, models.StatusActive, e.Status)
			},
		},
		{
			name:    "членство не заводилось",
			repoErr: models.ErrMembershipNotFound,
			want: func(t *testing.T, e *models.Entitlement) {
				assert.False(t, e.Entitled)
				assert.Equal(t, models.StatusNone, e.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			c := new(CacheMock)
			c.On("Get", mock.Anything, "entitlement:driver-1", mock.Anything).Return(false, nil).Once()
			if tt.repoErr != nil {
				repo.On("GetMembership", mock.Anything, "driver-1").Return(nil, tt.repoErr).Once()
			} else {
				repo.On("GetMembership", mock.Anything, "driver-1").Return(tt.membership, nil).Once()
				c.On("Set", mock.Anything, "entitlement:driver-1", mock.Anything, snapshotTTL).Return(nil).Once()
			}
			svc := New(repo, c, newNoopLogger())

			entitlement, err := svc.GetEntitlement(context.Background(), "driver-1", now)

			require.NoError(t, err)
			tt.want(t, entitlement)
			repo.AssertExpectations(t)
			c.AssertExpectations(t)
		})
	}
}

func TestGetEntitlement_CacheHit(t *testing.T) {
	repo := new(RepoMock)
	c := new(CacheMock)
	c.On("Get", mock.Anything, "entitlement:driver-1", mock.Anything).
		Run(func(args mock.Arguments) {
			snapshot := args.Get(2).(**models.Membership)
			*snapshot = &models.Membership{
				SubjectID: "driver-1",
				Status:    models.StatusActive,
				Origin:    models.OriginPaid,
				ExpiresAt: now.AddDate(1, 0, 0),
			}
		}).Return(true, nil).Once()
	svc := New(repo, c, newNoopLogger())

	entitlement, err := svc.GetEntitlement(context.Background(), "driver-1", now)

	require.NoError(t, err)
	assert.True(t, entitlement.Entitled)
	repo.AssertNotCalled(t, "GetMembership")
}

func TestGetEntitlement_CacheErrorFallsBackToStorage(t *testing.T) {
	repo := new(RepoMock)
	c := new(CacheMock)
	c.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down")).Once()
	repo.On("GetMembership", mock.Anything, "driver-1").Return(&models.Membership{
		SubjectID: "driver-1",
		Status:    models.StatusActive,
		Origin:    models.OriginPaid,
		ExpiresAt: now.AddDate(1, 0, 0),
	}, nil).Once()
	c.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	svc := New(repo, c, newNoopLogger())

	entitlement, err := svc.GetEntitlement(context.Background(), "driver-1", now)

	require.NoError(t, err)
	assert.True(t, entitlement.Entitled)
}

func TestGetEntitlement_StorageErrorBubbles(t *testing.T) {
	repo := new(RepoMock)
	c := new(CacheMock)
	storageErr := errors.New("connection refused")
	c.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()
	repo.On("GetMembership", mock.Anything, "driver-1").Return(nil, storageErr).Once()
	svc := New(repo, c, newNoopLogger())

	_, err := svc.GetEntitlement(context.Background(), "driver-1", now)

	require.ErrorIs(t, err, storageErr)
}

func TestListUnlocks(t *testing.T) {
	repo := new(RepoMock)
	c := new(CacheMock)
	repo.On("ListUnlockPayments", mock.Anything, "driver-1").Return([]*models.UnlockPayment{
		{SubjectID: "driver-1", BeneficiaryID: "passenger-3"},
		{SubjectID: "driver-1", BeneficiaryID: "passenger-8"},
	}, nil).Once()
	svc := New(repo, c, newNoopLogger())

	unlocks, err := svc.ListUnlocks(context.Background(), "driver-1")

	require.NoError(t, err)
	require.Len(t, unlocks, 2)
	assert.Equal(t, "passenger-3", unlocks[0].BeneficiaryID)
	repo.AssertExpectations(t)
}
