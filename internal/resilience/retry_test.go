package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_DefaultIsSingleAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("temporary"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls, retries int
	cfg := fastRetry(3)
	cfg.OnRetry = func(int, error) { retries++ }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %d", calls, retries)
	}
}

func TestDo_NonTransientStops(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return model.NewFailure(model.ErrService, model.StageDraft, "rejected")
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one failing call, got %d (err=%v)", calls, err)
	}
}

func TestDo_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, fastRetry(5), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"), 503)
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one call after cancel, got %d (err=%v)", calls, err)
	}
}

func TestDoVal_ReturnsLastValueOnFailure(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		calls++
		return calls * 10, model.NewFailure(model.ErrTimeout, model.StageResearch, "slow")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != 20 {
		t.Errorf("expected last value 20, got %d", val)
	}
}

func TestBackoff_CappedAndGrowing(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 25 * time.Millisecond, Multiplier: 2})
	if d := backoff(0, cfg); d != 10*time.Millisecond {
		t.Errorf("attempt 0: got %v", d)
	}
	if d := backoff(1, cfg); d != 20*time.Millisecond {
		t.Errorf("attempt 1: got %v", d)
	}
	if d := backoff(5, cfg); d != 25*time.Millisecond {
		t.Errorf("attempt 5: got %v", d)
	}
}

func TestRetryFromConfig(t *testing.T) {
	rc := RetryFromConfig(config.BatchConfig{RetryAttempts: 3, RetryBackoffMs: 250})
	if rc.MaxAttempts != 3 || rc.InitialBackoff != 250*time.Millisecond {
		t.Errorf("unexpected config: %+v", rc)
	}
	if RetryFromConfig(config.BatchConfig{}).MaxAttempts != 1 {
		t.Error("expected single attempt by default")
	}
}
