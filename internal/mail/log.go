package mail

import (
	"context"
	"log/slog"
)

// LogSender renders messages and writes them to the log instead of sending
// them. It is meant for local development, where it is the only way to see a
// reset link.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender writing to logger, or to the default
// logger when logger is nil.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	text, err := Render(msg.Template, msg.Data)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "email not sent (log provider)",
		"to", msg.To,
		"subject", msg.Subject,
		"template", msg.Template,
		"body", text,
	)
	return nil
}
