package logger

import (
	"github.com/rs/zerolog"
)

// LogSender is the subset of the Discord client used for log alerts
type LogSender interface {
	SendLogMessage(level, message string, fields map[string]interface{}) error
}

// DiscordHook forwards ERROR and FATAL events to a Discord webhook
type DiscordHook struct {
	sender LogSender
}

func NewDiscordHook(sender LogSender) *DiscordHook {
	return &DiscordHook{sender: sender}
}

// Run implements zerolog.Hook
func (h *DiscordHook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if h.sender == nil || level < zerolog.ErrorLevel || level == zerolog.NoLevel {
		return
	}

	fields := alertFieldsFrom(e)

	name := "ERROR"
	if level >= zerolog.FatalLevel {
		name = "FATAL"
		// the process exits right after a fatal event, so send inline
		_ = h.sender.SendLogMessage(name, message, fields)
		return
	}

	go func() {
		_ = h.sender.SendLogMessage(name, message, fields)
	}()
}
