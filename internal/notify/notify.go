// Package notify delivers alert payloads over push, e-mail and Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
)

// Channel names, used for selection and as metric labels.
const (
	ChannelPush     = "push"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

var (
	// ErrSkipped marks a channel that does not apply to the message (no mailbox, no chat handle).
	ErrSkipped = errors.New("channel skipped")
	// ErrChannel wraps a delivery failure of one channel.
	ErrChannel = errors.New("channel delivery failed")
)

// Message is one logical notification. Snapshot is nil when no cached data exists.
type Message struct {
	Payload  models.AlertPayload
	Location models.Location
	Snapshot *models.ForecastSnapshot
	Now      time.Time
}

// Notifier delivers a Message over one transport.
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, msg Message) error
}

// Result statuses.
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Result is the outcome of one channel for one Dispatch.
type Result struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// FanOut dispatches messages to a fixed set of notifiers.
type FanOut struct {
	notifiers map[string]Notifier
	order     []string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewFanOut registers notifiers by channel name. timeout bounds each channel; zero means no bound.
func NewFanOut(logger *zap.Logger, timeout time.Duration, notifiers ...Notifier) *FanOut {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &FanOut{notifiers: make(map[string]Notifier), timeout: timeout, logger: logger}
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if _, dup := f.notifiers[n.Channel()]; !dup {
			f.order = append(f.order, n.Channel())
		}
		f.notifiers[n.Channel()] = n
	}
	return f
}

// Channels returns the registered channel names in registration order.
func (f *FanOut) Channels() []string {
	return append([]string(nil), f.order...)
}

// Dispatch delivers msg to the selected channels (all registered channels when
// none are given) concurrently. Failures are logged and counted per channel and
// never returned; one channel never blocks or skips another.
func (f *FanOut) Dispatch(ctx context.Context, msg Message, channels ...string) []Result {
	if len(channels) == 0 {
		channels = f.order
	}
	results := make([]Result, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		n, ok := f.notifiers[ch]
		if !ok {
			results[i] = Result{Channel: ch, Status: StatusSkipped, Error: "channel not configured"}
			observability.NotificationsTotal.WithLabelValues(ch, StatusSkipped).Inc()
			continue
		}
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			results[i] = f.deliver(ctx, n, msg)
		}(i, n)
	}
	wg.Wait()
	return results
}

func (f *FanOut) deliver(ctx context.Context, n Notifier, msg Message) (res Result) {
	ch := n.Channel()
	logger := observability.LoggerFromContext(ctx, f.logger).With(
		zap.String("channel", ch),
		zap.Int64("location_id", msg.Location.ID),
		zap.String("kind", string(msg.Payload.Kind)),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panicked", zap.Any("panic", r))
			res = Result{Channel: ch, Status: StatusError, Error: fmt.Sprint(r)}
		}
		observability.NotificationsTotal.WithLabelValues(ch, res.Status).Inc()
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	err := n.Notify(ctx, msg)
	switch {
	case err == nil:
		logger.Debug("notification sent")
		return Result{Channel: ch, Status: StatusSent}
	case errors.Is(err, ErrSkipped):
		logger.Debug("notification skipped", zap.Error(err))
		return Result{Channel: ch, Status: StatusSkipped, Error: err.Error()}
	default:
		logger.Warn("notification failed", zap.Error(err))
		return Result{Channel: ch, Status: StatusError, Error: err.Error()}
	}
}
