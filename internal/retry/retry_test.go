package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastConfig(attempts int) Config {
	return Config{
		MaxRetries: attempts,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Multiplier: 2,
	}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", attempts: 3, failures: 0, wantCalls: 1},
		{name: "succeeds after retries", attempts: 3, failures: 2, wantCalls: 3},
		{name: "exhausts attempts", attempts: 3, failures: 5, wantCalls: 3, wantErr: true},
		{name: "zero attempts still calls once", attempts: 0, failures: 5, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), fastConfig(tt.attempts), func() (int, error) {
				calls++
				if calls <= tt.failures {
					return 0, errTransient
				}
				return 42, nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errTransient)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 42, got)
		})
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Do(ctx, Config{MaxRetries: 5, BaseDelay: time.Hour, Multiplier: 2}, func() (string, error) {
		calls++
		cancel()
		return "", errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultBaseDelay, cfg.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.MaxDelay)
}
