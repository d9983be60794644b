package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trendcore/internal/model"
)

type captureNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *captureNotifier) Send(ctx context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func (c *captureNotifier) got() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]Alert, len(c.alerts))
	copy(cp, c.alerts)
	return cp
}

func TestFormatEvent_Signal(t *testing.T) {
	a, ok := FormatEvent(model.Event{
		Kind:      model.EventSignal,
		Symbol:    "BTCUSDT",
		Direction: model.Long,
		Price:     50000,
	})
	if !ok {
		t.Fatal("signal events must notify")
	}
	if a.Level != AlertInfo {
		t.Errorf("expected INFO, got %s", a.Level)
	}
	if !strings.Contains(a.Title, "BTCUSDT") || !strings.Contains(a.Title, "LONG") {
		t.Errorf("title missing symbol/direction: %q", a.Title)
	}
}

func TestFormatEvent_LosingCloseEscalates(t *testing.T) {
	a, ok := FormatEvent(model.Event{
		Kind:   model.EventPositionClosed,
		Symbol: "BTCUSDT",
		Trade: &model.TradeRecord{
			Side:       model.Long,
			ExitPrice:  96,
			PnL:        -20,
			ExitReason: model.ExitOpposingSignal,
		},
	})
	if !ok {
		t.Fatal("close events must notify")
	}
	if a.Level != AlertWarning {
		t.Errorf("losing close should be WARNING, got %s", a.Level)
	}
}

func TestFormatEvent_ErrorIsCritical(t *testing.T) {
	a, ok := FormatEvent(model.Event{Kind: model.EventError, Symbol: "X", Err: "bad candle"})
	if !ok || a.Level != AlertCritical {
		t.Fatalf("expected CRITICAL error alert, got %+v ok=%v", a, ok)
	}
}

func TestFormatEvent_MissingPayloadSkipped(t *testing.T) {
	if _, ok := FormatEvent(model.Event{Kind: model.EventPositionOpened}); ok {
		t.Error("opened event without position must be skipped")
	}
	if _, ok := FormatEvent(model.Event{Kind: model.EventPositionClosed}); ok {
		t.Error("closed event without trade must be skipped")
	}
}

func TestRelay_DeliversToAllBackends(t *testing.T) {
	a := &captureNotifier{}
	b := &captureNotifier{}
	relay := NewRelay(a, b)

	ch := make(chan model.Event, 4)
	ch <- model.Event{Kind: model.EventSignal, Symbol: "BTCUSDT", Direction: model.Short, Price: 100}
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	relay.Run(ctx, ch)

	if len(a.got()) != 1 || len(b.got()) != 1 {
		t.Fatalf("expected each backend to receive 1 alert, got %d / %d", len(a.got()), len(b.got()))
	}
}

func TestRelay_ReportsSendErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("unreachable")}
	relay := NewRelay(failing)

	var failures int
	relay.OnSendError = func(error) { failures++ }

	ch := make(chan model.Event, 1)
	ch <- model.Event{Kind: model.EventError, Symbol: "X", Err: "boom"}
	close(ch)

	relay.Run(context.Background(), ch)

	if failures != 1 {
		t.Errorf("expected 1 reported failure, got %d", failures)
	}
}
