package notification

import (
	"context"
	"fmt"
	"log/slog"

	"trendcore/internal/model"
)

// Relay formats pipeline events into alerts and fans them out to the
// configured notifiers. It implements model.EventSink.
type Relay struct {
	notifiers []Notifier
	log       *slog.Logger

	// OnSendError is called when a backend delivery fails. Optional,
	// used to feed failure metrics.
	OnSendError func(err error)
}

// NewRelay creates a relay over the given backends. With no backends it
// falls back to the log notifier.
func NewRelay(notifiers ...Notifier) *Relay {
	if len(notifiers) == 0 {
		notifiers = []Notifier{NewLogNotifier()}
	}
	return &Relay{
		notifiers: notifiers,
		log:       slog.Default().With("component", "notify"),
	}
}

// Run consumes events until ctx is cancelled or eventCh is closed.
func (r *Relay) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			alert, send := FormatEvent(ev)
			if !send {
				continue
			}
			for _, n := range r.notifiers {
				if err := n.Send(ctx, alert); err != nil {
					r.log.Warn("alert delivery failed", "title", alert.Title, "err", err)
					if r.OnSendError != nil {
						r.OnSendError(err)
					}
				}
			}
		}
	}
}

// FormatEvent converts one pipeline event into an alert. The second return
// is false for event kinds that do not warrant a notification.
func FormatEvent(ev model.Event) (Alert, bool) {
	switch ev.Kind {
	case model.EventSignal:
		return Alert{
			Level:   AlertInfo,
			Title:   fmt.Sprintf("%s signal: %s", ev.Symbol, ev.Direction),
			Message: fmt.Sprintf("Crossover detected at %.4f", ev.Price),
		}, true

	case model.EventPositionOpened:
		if ev.Position == nil {
			return Alert{}, false
		}
		return Alert{
			Level: AlertInfo,
			Title: fmt.Sprintf("%s opened %s", ev.Symbol, ev.Position.Side),
			Message: fmt.Sprintf("Entry %.4f, target %.4f, risk %.2f",
				ev.Position.EntryPrice, ev.Position.TargetPrice, ev.Position.RiskAmount),
		}, true

	case model.EventTakeProfitHit:
		if ev.Trade == nil {
			return Alert{}, false
		}
		return Alert{
			Level: AlertInfo,
			Title: fmt.Sprintf("%s take profit hit", ev.Symbol),
			Message: fmt.Sprintf("%s closed at %.4f, pnl %+.2f",
				ev.Trade.Side, ev.Trade.ExitPrice, ev.Trade.PnL),
		}, true

	case model.EventPositionClosed:
		if ev.Trade == nil {
			return Alert{}, false
		}
		level := AlertInfo
		if ev.Trade.PnL < 0 {
			level = AlertWarning
		}
		return Alert{
			Level: level,
			Title: fmt.Sprintf("%s closed %s (%s)", ev.Symbol, ev.Trade.Side, ev.Trade.ExitReason),
			Message: fmt.Sprintf("Exit %.4f, pnl %+.2f",
				ev.Trade.ExitPrice, ev.Trade.PnL),
		}, true

	case model.EventError:
		return Alert{
			Level:   AlertCritical,
			Title:   fmt.Sprintf("%s pipeline error", ev.Symbol),
			Message: ev.Err,
		}, true
	}
	return Alert{}, false
}
