package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	trace    *[]string
	stops    int
}

func (c *fakeComponent) Start(context.Context) error {
	if c.trace != nil {
		*c.trace = append(*c.trace, "start:"+c.name)
	}
	return c.startErr
}

func (c *fakeComponent) Stop(context.Context) error {
	c.stops++
	if c.trace != nil {
		*c.trace = append(*c.trace, "stop:"+c.name)
	}
	return c.stopErr
}

func TestRuntimeStopsInReverseOrder(t *testing.T) {
	t.Parallel()

	trace := make([]string, 0, 4)
	metrics := &fakeComponent{name: "metrics", trace: &trace}
	refresher := &fakeComponent{name: "refresher", trace: &trace}

	runtime := NewRuntime(metrics)
	runtime.Register(refresher)
	runtime.Register(nil)

	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := runtime.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:metrics", "start:refresher", "stop:refresher", "stop:metrics"}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("trace: got %v want %v", trace, want)
	}
}

func TestRuntimeRollsBackOnStartFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("port in use")
	metrics := &fakeComponent{name: "metrics"}
	refresher := &fakeComponent{name: "refresher", startErr: boom}
	never := &fakeComponent{name: "never"}

	runtime := NewRuntime(metrics, refresher, never)
	err := runtime.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("start error: got %v", err)
	}

	if metrics.stops != 1 {
		t.Fatalf("started component stops: got %d want 1", metrics.stops)
	}
	if refresher.stops != 0 || never.stops != 0 {
		t.Fatalf("unexpected stops: refresher=%d never=%d", refresher.stops, never.stops)
	}
}

func TestRuntimeStopCollectsErrors(t *testing.T) {
	t.Parallel()

	first := errors.New("first failure")
	second := errors.New("second failure")
	runtime := NewRuntime(
		&fakeComponent{name: "a", stopErr: first},
		&fakeComponent{name: "b", stopErr: second},
	)

	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := runtime.Stop(context.Background())
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("stop error should carry both failures: %v", err)
	}
}
