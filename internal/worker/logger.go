package worker

import (
	"fmt"

	"github.com/rs/zerolog"
)

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug().Str("source", "asynq").Msg(fmt.Sprint(args...))
}

func (l asynqLogger) Info(args ...interface{}) {
	l.logger.Info().Str("source", "asynq").Msg(fmt.Sprint(args...))
}

func (l asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn().Str("source", "asynq").Msg(fmt.Sprint(args...))
}

func (l asynqLogger) Error(args ...interface{}) {
	l.logger.Error().Str("source", "asynq").Msg(fmt.Sprint(args...))
}

func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal().Str("source", "asynq").Msg(fmt.Sprint(args...))
}
