package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes alerts to the log.
type LogSink struct {
	Logger zerolog.Logger
}

func (l *LogSink) Name() string {
	return "log"
}

func (l *LogSink) Send(_ context.Context, alerts []Alert) error {
	for _, a := range alerts {
		l.Logger.Info().Object("alert", a).Msg(a.Title)
	}
	return nil
}
