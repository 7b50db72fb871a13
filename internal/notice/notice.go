// Package notice delivers short user-visible messages (toasts) to whatever UI
// is attached to the console.
package notice

import (
	"context"
	"log/slog"

	"clinic-console/internal/event"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Icon    string `json:"icon,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// BusNotifier publishes notices on the event bus so connected UIs can show
// them, and logs each one.
type BusNotifier struct {
	bus event.Bus
}

func NewBusNotifier(bus event.Bus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (b *BusNotifier) Notify(_ context.Context, n Notice) {
	switch n.Level {
	case LevelError:
		slog.Warn("notice", "level", n.Level, "message", n.Message)
	default:
		slog.Info("notice", "level", n.Level, "message", n.Message)
	}

	if b.bus != nil {
		b.bus.Publish(event.New(event.TypeNotice, n))
	}
}

// Messages shown by the session and password flows.
var (
	SignedIn            = Notice{Level: LevelSuccess, Message: "Signed in successfully."}
	FirstAccessRequired = Notice{Level: LevelInfo, Message: "Please change your password to continue.", Icon: "lock"}
	SignInFailed        = Notice{Level: LevelError, Message: "Sign-in failed. Check your credentials."}
	CredentialsRequired = Notice{Level: LevelError, Message: "Email and password are required."}
	SignedOut           = Notice{Level: LevelSuccess, Message: "Signed out."}
	PasswordMismatch    = Notice{Level: LevelError, Message: "Passwords do not match."}
	PasswordTooShort    = Notice{Level: LevelError, Message: "Password must be at least 6 characters."}
	PasswordChanged     = Notice{Level: LevelSuccess, Message: "Password changed."}
	PasswordChangeFail  = Notice{Level: LevelError, Message: "Could not change password."}
)
