package notify

import "github.com/rs/zerolog"

// Notifier shows short-lived messages to the user.
type Notifier interface {
	Notify(message string)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message string) {
	n.logger.Info().Str("notification", message).Msg("Notification")
}

// Multi fans a notification out to every non-nil notifier.
type Multi []Notifier

func (m Multi) Notify(message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(message)
		}
	}
}

// Func adapts a function to the Notifier interface.
type Func func(message string)

func (f Func) Notify(message string) { f(message) }
