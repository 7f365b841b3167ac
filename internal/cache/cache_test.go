package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/observability"
)

func snap(userID string, qty int) *domain.CartSnapshot {
	return &domain.CartSnapshot{
		UserID: userID,
		Items: []domain.CartItem{
			{ProductID: "sku-1", Quantity: qty, UnitPrice: 10.0},
		},
	}
}

func TestGetCartMissFetchesAndPopulates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	fetcher := NewMockFetcher(ctrl)
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").Return(snap("u1", 2), nil).Times(1)

	c, err := New(16, time.Minute, fetcher, zap.NewNop(), observability.NewNoop())
	require.NoError(t, err)

	got, err := c.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, 20.0, got.Subtotal())

	// second read must be served from the cache, the mock allows one fetch
	got, err = c.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Items[0].Quantity)
}

func TestGetCartFetchError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetchErr := errors.New("cart service down")
	fetcher := NewMockFetcher(ctrl)
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").Return(nil, fetchErr)

	c, err := New(16, time.Minute, fetcher, zap.NewNop(), observability.NewNoop())
	require.NoError(t, err)

	_, err = c.GetCart(context.Background(), "u1")
	require.ErrorIs(t, err, fetchErr)

	// a failed fetch must not leave a poisoned entry behind
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").Return(snap("u1", 1), nil)
	got, err := c.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
}

func TestGetCartLazyExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := NewMockFetcher(ctrl)
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").Return(snap("u1", 1), nil)
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").Return(snap("u1", 3), nil)

	c, err := New(16, 10*time.Millisecond, fetcher, zap.NewNop(), observability.NewNoop())
	require.NoError(t, err)

	got, err := c.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Items[0].Quantity)

	time.Sleep(20 * time.Millisecond)

	got, err = c.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 3, got.Items[0].Quantity, "expired entry must be refetched")
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := NewMockFetcher(ctrl)
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").Return(snap("u1", 1), nil)
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").Return(&domain.CartSnapshot{UserID: "u1"}, nil)

	c, err := New(16, time.Minute, fetcher, zap.NewNop(), observability.NewNoop())
	require.NoError(t, err)

	_, err = c.GetCart(context.Background(), "u1")
	require.NoError(t, err)

	c.Invalidate("u1")

	got, err := c.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, got.Empty(), "cleared cart must be visible after invalidation")
}

func TestPutCopiesSnapshot(t *testing.T) {
	c, err := New(16, time.Minute, nil, zap.NewNop(), observability.NewNoop())
	require.NoError(t, err)

	original := snap("u1", 5)
	c.Put("u1", original, 0)
	original.Items[0].Quantity = 99

	got, err := c.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 5, got.Items[0].Quantity, "cached copy must not alias the caller's items")
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := NewMockFetcher(ctrl)
	release := make(chan struct{})
	fetcher.EXPECT().Snapshot(gomock.Any(), "u1").DoAndReturn(
		func(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
			<-release
			return snap(userID, 1), nil
		},
	).Times(1)

	c, err := New(16, time.Minute, fetcher, zap.NewNop(), observability.NewNoop())
	require.NoError(t, err)

	const readers = 10
	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetCart(context.Background(), "u1")
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
	}
}
