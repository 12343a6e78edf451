package editor

import (
	"context"
	"log/slog"
)

// Level is the severity of a user-facing notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is an advisory message for the user. It is not part of the saved zone.
type Notice struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// Notifier receives transient notices (toasts).
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type logNotifier struct {
	log *slog.Logger
}

func (l logNotifier) Notify(n Notice) {
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelWarn
	}
	l.log.Log(context.Background(), level, n.Title, slog.String("level", string(n.Level)), slog.String("message", n.Message))
}
