package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/patchlist"
)

var ErrSinkDelivery = errors.New("sink delivery failure")

const defaultTimeout = 10 * time.Second

// Sink delivers a batch of alerts somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, alerts []Alert) error
}

type Notifier struct {
	sinks   []Sink
	baseURL string
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

type Option func(n *Notifier)

func WithSink(sink Sink) Option {
	return func(n *Notifier) {
		n.sinks = append(n.sinks, sink)
	}
}

// Root of the read API used for deep links.
func WithBaseURL(baseURL string) Option {
	return func(n *Notifier) {
		n.baseURL = baseURL
	}
}

// Upper bound of a single sink delivery.
func WithTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

func New(logger zerolog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		timeout: defaultTimeout,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Sinks() int {
	return len(n.sinks)
}

// Notify sends the alerts of a batch to every sink. Sinks run
// concurrently, each bounded by the notifier timeout; a failing or hung
// sink does not keep the others from receiving the batch. The returned
// error joins the failures of all sinks and is informational only.
func (n *Notifier) Notify(ctx context.Context, patches []Patch, mode patchlist.Mode) error {
	if len(patches) == 0 || len(n.sinks) == 0 {
		return nil
	}

	alerts := BuildAlerts(patches, mode, n.baseURL, n.now().UTC())
	n.logger.Info().
		Int("alerts", len(alerts)).
		Int("sinks", len(n.sinks)).
		Stringer("mode", mode).
		Msg("sending alerts for new patches")

	results := make([]chan error, len(n.sinks))
	for i, sink := range n.sinks {
		results[i] = make(chan error, 1)
		go func(sink Sink, out chan<- error) {
			out <- n.deliver(ctx, sink, alerts)
		}(sink, results[i])
	}

	// One deadline for the whole batch; sinks that ignore their context
	// must not stack their grace periods.
	wait, cancel := context.WithTimeout(context.Background(), n.timeout+time.Second)
	defer cancel()

	var errs []error
	for i, sink := range n.sinks {
		var err error
		select {
		case err = <-results[i]:
		case <-wait.Done():
			select {
			case err = <-results[i]:
			default:
				err = fmt.Errorf("%w: %s: timed out", ErrSinkDelivery, sink.Name())
			}
		}
		if err != nil {
			n.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("error sending alerts")
			errs = append(errs, err)
			continue
		}
		n.logger.Debug().Str("sink", sink.Name()).Msg("alerts sent")
	}

	return errors.Join(errs...)
}

func (n *Notifier) deliver(ctx context.Context, sink Sink, alerts []Alert) (err error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrSinkDelivery, sink.Name(), r)
		}
	}()

	if sendErr := sink.Send(ctx, alerts); sendErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrSinkDelivery, sink.Name(), sendErr)
	}
	return nil
}
