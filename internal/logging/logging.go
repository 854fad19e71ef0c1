// Package logging configures the global zerolog logger and adapts it to
// the logger interfaces of third-party libraries.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger: human readable console output in
// development, JSON otherwise.
func Setup(env, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if strings.EqualFold(env, "development") || env == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Cron adapts the global logger to cron.Logger.
type Cron struct{ Component string }

func (l Cron) Info(msg string, keysAndValues ...interface{}) {
	fields(log.Debug(), keysAndValues).Str("component", l.Component).Msg(msg)
}

func (l Cron) Error(err error, msg string, keysAndValues ...interface{}) {
	fields(log.Error().Err(err), keysAndValues).Str("component", l.Component).Msg(msg)
}

// Retry adapts the global logger to retryablehttp.LeveledLogger.
type Retry struct{ Component string }

func (l Retry) Error(msg string, keysAndValues ...interface{}) {
	fields(log.Error(), keysAndValues).Str("component", l.Component).Msg(msg)
}

func (l Retry) Warn(msg string, keysAndValues ...interface{}) {
	fields(log.Warn(), keysAndValues).Str("component", l.Component).Msg(msg)
}

func (l Retry) Info(msg string, keysAndValues ...interface{}) {
	fields(log.Info(), keysAndValues).Str("component", l.Component).Msg(msg)
}

func (l Retry) Debug(msg string, keysAndValues ...interface{}) {
	fields(log.Debug(), keysAndValues).Str("component", l.Component).Msg(msg)
}

func fields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		e = e.Interface(key, keysAndValues[i+1])
	}
	return e
}
