// Package password implements the mandatory first-access password change.
//
// A Flow is one modal instance: it validates locally, sends at most one
// change request at a time and refuses to close while the session still
// requires the change.
package password

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"clinic-console/internal/model"
	"clinic-console/internal/notice"
	"clinic-console/internal/session"
)

const MinLength = 6

type Changer interface {
	ChangePassword(ctx context.Context, newPassword string) error
}

type SessionReader interface {
	Snapshot() session.Snapshot
}

type Status struct {
	Open        bool `json:"open"`
	Dismissable bool `json:"dismissable"`
	Submitting  bool `json:"submitting"`
}

type Flow struct {
	changer  Changer
	sessions SessionReader
	notifier notice.Notifier

	inFlight sync.Mutex

	mu         sync.Mutex
	openFor    string
	submitting bool
}

func NewFlow(changer Changer, sessions SessionReader, notifier notice.Notifier) *Flow {
	if changer == nil || sessions == nil {
		panic("password: flow requires a changer and a session reader")
	}
	return &Flow{changer: changer, sessions: sessions, notifier: notifier}
}

// Validate checks the pair locally: mismatch first, then length in characters.
func Validate(newPassword string, confirmPassword string) error {
	if newPassword != confirmPassword {
		return &model.ValidationError{Field: "confirm_password", Reason: model.ReasonMismatch}
	}
	if utf8.RuneCountInString(newPassword) < MinLength {
		return &model.ValidationError{Field: "new_password", Reason: model.ReasonTooShort}
	}
	return nil
}

// Open shows the modal for the signed user. It is a no-op when signed out.
func (f *Flow) Open() {
	owner := modalOwner(f.sessions.Snapshot())
	if owner == "" {
		return
	}
	f.mu.Lock()
	f.openFor = owner
	f.mu.Unlock()
}

// IsOpen is true when the modal was opened or the session requires the change.
func (f *Flow) IsOpen() bool {
	return f.Status().Open
}

func (f *Flow) Dismissable() bool {
	return !f.sessions.Snapshot().FirstAccess
}

// Close is a no-op returning false while the change is still mandatory.
func (f *Flow) Close() bool {
	if !f.Dismissable() {
		return false
	}
	f.mu.Lock()
	f.openFor = ""
	f.mu.Unlock()
	return true
}

// Status reports the modal for the current session. An open modal belongs to
// the user who opened it and is dropped once that user is no longer signed.
func (f *Flow) Status() Status {
	snap := f.sessions.Snapshot()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openFor != "" && f.openFor != modalOwner(snap) {
		f.openFor = ""
	}

	return Status{
		Open:        snap.Signed && (f.openFor != "" || snap.FirstAccess),
		Dismissable: !snap.FirstAccess,
		Submitting:  f.submitting,
	}
}

func modalOwner(snap session.Snapshot) string {
	if !snap.Signed || snap.User == nil {
		return ""
	}
	if snap.User.ID != "" {
		return snap.User.ID
	}
	return snap.User.Email
}

// Submit validates, then sends the change. A second submission while one is
// outstanding returns model.ErrInFlight without reaching the network.
func (f *Flow) Submit(ctx context.Context, newPassword string, confirmPassword string) error {
	if err := Validate(newPassword, confirmPassword); err != nil {
		var validation *model.ValidationError
		if errors.As(err, &validation) && validation.Reason == model.ReasonMismatch {
			f.notify(ctx, notice.PasswordMismatch)
		} else {
			f.notify(ctx, notice.PasswordTooShort)
		}
		return err
	}

	if !f.inFlight.TryLock() {
		return model.ErrInFlight
	}
	defer f.inFlight.Unlock()

	f.setSubmitting(true)
	defer f.setSubmitting(false)

	if err := f.changer.ChangePassword(ctx, newPassword); err != nil {
		f.notify(ctx, notice.PasswordChangeFail)
		var changeErr *model.PasswordChangeError
		if errors.As(err, &changeErr) {
			return err
		}
		return &model.PasswordChangeError{Err: err}
	}

	f.notify(ctx, notice.PasswordChanged)
	f.Close()
	return nil
}

func (f *Flow) setSubmitting(v bool) {
	f.mu.Lock()
	f.submitting = v
	f.mu.Unlock()
}

func (f *Flow) notify(ctx context.Context, n notice.Notice) {
	if f.notifier != nil {
		f.notifier.Notify(ctx, n)
	}
}
