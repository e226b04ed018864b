// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/user/insightflow/internal/types"
)

func insightWith(confidence float64) *types.Insight {
	in := types.NewInsight("1h")
	in.Summary = "test"
	in.Confidence = confidence
	return in
}

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var got *types.Insight
	reg.Register("test", 0, func(ctx context.Context, insight *types.Insight) error {
		got = insight
		return nil
	})

	in := insightWith(0.6)
	res := reg.Deliver(context.Background(), in)
	if res.Delivered != 1 {
		t.Fatalf("expected 1 delivery, got %+v", res)
	}
	if got != in {
		t.Error("expected handler to receive the insight")
	}
}

func TestRegistryEmpty(t *testing.T) {
	reg := NewRegistry()
	res := reg.Deliver(context.Background(), insightWith(1))
	if res != (Result{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
	if reg.Len() != 0 {
		t.Errorf("expected 0 handlers, got %d", reg.Len())
	}
}

func TestRegistryMinConfidence(t *testing.T) {
	reg := NewRegistry()

	var lowCalls, highCalls int
	reg.Register("low", 0.2, func(ctx context.Context, insight *types.Insight) error {
		lowCalls++
		return nil
	})
	reg.Register("high", 0.8, func(ctx context.Context, insight *types.Insight) error {
		highCalls++
		return nil
	})

	res := reg.Deliver(context.Background(), insightWith(0.5))
	if res.Delivered != 1 || res.Skipped != 1 {
		t.Errorf("expected 1 delivered and 1 skipped, got %+v", res)
	}
	reg.Deliver(context.Background(), insightWith(0.8))

	if lowCalls != 2 {
		t.Errorf("expected 2 low calls, got %d", lowCalls)
	}
	if highCalls != 1 {
		t.Errorf("expected 1 high call (threshold is inclusive), got %d", highCalls)
	}
}

func TestRegistryFailuresDoNotStopLaterHandlers(t *testing.T) {
	reg := NewRegistry()

	var order []string
	reg.Register("erroring", 0, func(ctx context.Context, insight *types.Insight) error {
		order = append(order, "erroring")
		return errors.New("boom")
	})
	reg.Register("panicking", 0, func(ctx context.Context, insight *types.Insight) error {
		order = append(order, "panicking")
		panic("unexpected")
	})
	reg.Register("ok", 0, func(ctx context.Context, insight *types.Insight) error {
		order = append(order, "ok")
		return nil
	})

	res := reg.Deliver(context.Background(), insightWith(1))
	if res.Failed != 2 || res.Delivered != 1 {
		t.Errorf("expected 2 failed and 1 delivered, got %+v", res)
	}
	want := []string{"erroring", "panicking", "ok"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected %v, got %v", want, order)
			break
		}
	}
}
