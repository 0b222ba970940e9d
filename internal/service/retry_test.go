package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"shop-sync-service/internal/tiktok"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingPolicy(delays *[]time.Duration) RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Base:     time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestRetry_LinearBackoff(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := Retry(context.Background(), recordingPolicy(&delays), "op", func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("%w: HTTP 503", tiktok.ErrTransient)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, KindTransient, syncErr.Kind)
	assert.ErrorIs(t, err, tiktok.ErrTransient)
}

func TestRetry_UnauthorizedIsNeverRetried(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := Retry(context.Background(), recordingPolicy(&delays), "op", func(context.Context) (int, error) {
		calls++
		return 0, &tiktok.APIError{Code: 105002, Message: "access token expired"}
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), CodeUnauthorized)
}

func TestRetry_SucceedsAfterFailure(t *testing.T) {
	var delays []time.Duration
	calls := 0

	got, err := Retry(context.Background(), recordingPolicy(&delays), "op", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Len(t, delays, 1)
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := Retry(ctx, RetryPolicy{Attempts: 3, Base: time.Hour}, "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "http 401", err: fmt.Errorf("%w: HTTP 401", tiktok.ErrUnauthorized), want: KindUnauthorized},
		{name: "auth api code", err: &tiktok.APIError{Code: 105001}, want: KindUnauthorized},
		{name: "business api code", err: &tiktok.APIError{Code: 36009003}, want: KindTransient},
		{name: "server error", err: tiktok.ErrTransient, want: KindTransient},
		{name: "malformed", err: tiktok.ErrMalformedResponse, want: KindMalformed},
		{name: "shop not found", err: fmt.Errorf("%w: S1", ErrShopNotFound), want: KindNotFound},
		{name: "wrong channel", err: ErrWrongChannel, want: KindNotFound},
		{name: "wrapped sync error", err: fmt.Errorf("outer: %w", &SyncError{Kind: KindMalformed, Op: "x", Err: errors.New("y")}), want: KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
