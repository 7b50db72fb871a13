package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"clinic-console/internal/authclient"
	"clinic-console/internal/event"
	"clinic-console/internal/model"
	"clinic-console/internal/notice"
	"clinic-console/internal/storage"
)

type AuthAPI interface {
	Login(ctx context.Context, email string, password string) (authclient.LoginResult, error)
	ChangePassword(ctx context.Context, token string, newPassword string) error
}

// Controller is the only writer of the session: restore, login, logout and
// first-access completion. It also owns the persisted user and token keys.
type Controller struct {
	store    *Store
	kv       storage.Store
	api      AuthAPI
	bus      event.Bus
	notifier notice.Notifier

	restoreOnce sync.Once
	// mu serializes mutations so persisted and in-memory state move together.
	mu            sync.Mutex
	loginInFlight sync.Mutex
}

func NewController(store *Store, kv storage.Store, api AuthAPI, bus event.Bus, notifier notice.Notifier) *Controller {
	if store == nil {
		panic("session: controller requires a session store")
	}
	if kv == nil {
		panic("session: controller requires persisted storage")
	}
	if api == nil {
		panic("session: controller requires an auth API")
	}

	return &Controller{
		store:    store,
		kv:       kv,
		api:      api,
		bus:      bus,
		notifier: notifier,
	}
}

func (c *Controller) Store() *Store {
	return c.store
}

// Restore loads the persisted session once per process. Later calls return the
// current snapshot without touching storage.
func (c *Controller) Restore(ctx context.Context) Snapshot {
	c.restoreOnce.Do(func() {
		c.restore(ctx)
	})
	return c.store.Snapshot()
}

func (c *Controller) restore(ctx context.Context) {
	c.mu.Lock()
	user, token, err := c.readPersisted(ctx)
	if err != nil {
		c.discardStored(ctx, err)
		c.store.finishRestore(nil, "")
	} else {
		c.store.finishRestore(&user, token)
	}
	c.mu.Unlock()

	snap := c.store.Snapshot()
	if snap.Signed {
		slog.Info("session restored", "user_id", snap.User.ID, "identity", snap.User.Identity.String(), "first_access", snap.FirstAccess)
	} else {
		slog.Info("no session restored")
	}

	c.publish(event.TypeSessionRestored, map[string]any{"signed": snap.Signed})
}

func (c *Controller) readPersisted(ctx context.Context) (model.User, string, error) {
	rawUser, userErr := c.kv.Get(ctx, storage.KeyUser)
	token, tokenErr := c.kv.Get(ctx, storage.KeyToken)

	switch {
	case userErr != nil && !errors.Is(userErr, storage.ErrNotFound):
		return model.User{}, "", &model.RestoreError{Key: storage.KeyUser, Err: userErr}
	case tokenErr != nil && !errors.Is(tokenErr, storage.ErrNotFound):
		return model.User{}, "", &model.RestoreError{Key: storage.KeyToken, Err: tokenErr}
	case userErr != nil && tokenErr != nil:
		return model.User{}, "", &model.RestoreError{Key: storage.KeyUser, Err: storage.ErrNotFound}
	case userErr != nil:
		return model.User{}, "", &model.RestoreError{Key: storage.KeyUser, Err: model.ErrPartialSession}
	case tokenErr != nil || strings.TrimSpace(token) == "":
		return model.User{}, "", &model.RestoreError{Key: storage.KeyToken, Err: model.ErrPartialSession}
	}

	var user model.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return model.User{}, "", &model.RestoreError{Key: storage.KeyUser, Err: fmt.Errorf("%w: %v", model.ErrMalformedRecord, err)}
	}

	return user, token, nil
}

// discardStored fails closed. Partial or malformed keys are removed so storage
// again holds both keys or neither; backend failures leave storage alone.
func (c *Controller) discardStored(ctx context.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.Debug("no stored session", "reason", err)
		return
	case errors.Is(err, model.ErrPartialSession), errors.Is(err, model.ErrMalformedRecord):
		slog.Warn("discarding stored session", "reason", err)
		c.removeKeys(ctx)
	default:
		slog.Warn("stored session unreadable; starting signed out", "reason", err)
	}
}

// Login performs the login exchange and, on success, persists and installs the
// merged user record. Only one login runs at a time; a second concurrent call
// returns model.ErrInFlight without reaching the network.
func (c *Controller) Login(ctx context.Context, email string, password string) (Snapshot, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		field := "email"
		if email != "" {
			field = "password"
		}
		c.notify(ctx, notice.CredentialsRequired)
		return c.store.Snapshot(), &model.ValidationError{Field: field, Reason: model.ReasonRequired}
	}

	if !c.loginInFlight.TryLock() {
		return c.store.Snapshot(), model.ErrInFlight
	}
	defer c.loginInFlight.Unlock()

	c.Restore(ctx)

	result, err := c.api.Login(ctx, email, password)
	if err != nil {
		slog.Warn("login failed", "email", email, "error", err)
		c.notify(ctx, notice.SignInFailed)
		return c.store.Snapshot(), err
	}

	user := result.User.WithLoginResult(result.Role, result.FirstAccess)
	if err := c.commitLogin(ctx, user, result.AccessToken); err != nil {
		slog.Error("failed to persist session", "error", err)
		c.notify(ctx, notice.SignInFailed)
		return c.store.Snapshot(), err
	}

	slog.Info("signed in", "user_id", user.ID, "identity", user.Identity.String(), "first_access", user.FirstAccess)
	c.publish(event.TypeSessionSignedIn, map[string]any{
		"user_id":      user.ID,
		"first_access": user.FirstAccess,
	})

	if user.FirstAccess {
		c.notify(ctx, notice.FirstAccessRequired)
	} else {
		c.notify(ctx, notice.SignedIn)
	}

	return c.store.Snapshot(), nil
}

func (c *Controller) commitLogin(ctx context.Context, user model.User, token string) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prevUser, hadUser := c.previous(ctx, storage.KeyUser)
	prevToken, hadToken := c.previous(ctx, storage.KeyToken)

	if err := c.kv.Set(ctx, storage.KeyUser, string(encoded)); err != nil {
		c.rollback(ctx, storage.KeyUser, prevUser, hadUser)
		return fmt.Errorf("persist user: %w", err)
	}
	if err := c.kv.Set(ctx, storage.KeyToken, token); err != nil {
		c.rollback(ctx, storage.KeyUser, prevUser, hadUser)
		c.rollback(ctx, storage.KeyToken, prevToken, hadToken)
		return fmt.Errorf("persist token: %w", err)
	}

	c.store.signIn(user, token)
	return nil
}

func (c *Controller) previous(ctx context.Context, key string) (string, bool) {
	value, err := c.kv.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return value, true
}

func (c *Controller) rollback(ctx context.Context, key string, value string, existed bool) {
	var err error
	if existed {
		err = c.kv.Set(ctx, key, value)
	} else {
		err = c.kv.Remove(ctx, key)
	}
	if err != nil {
		slog.Error("failed to roll back stored session key", "key", key, "error", err)
	}
}

// Logout clears the persisted keys and the in-memory session. It always
// succeeds locally; storage failures are logged.
func (c *Controller) Logout(ctx context.Context) Snapshot {
	c.Restore(ctx)

	c.mu.Lock()
	c.removeKeys(ctx)
	c.store.signOut()
	c.mu.Unlock()

	slog.Info("signed out")
	c.publish(event.TypeSessionSignedOut, nil)
	c.notify(ctx, notice.SignedOut)

	return c.store.Snapshot()
}

func (c *Controller) removeKeys(ctx context.Context) {
	for _, key := range []string{storage.KeyUser, storage.KeyToken} {
		if err := c.kv.Remove(ctx, key); err != nil {
			slog.Error("failed to remove stored session key", "key", key, "error", err)
		}
	}
}

// CompleteFirstAccess flips first_access to false on the persisted and the
// in-memory user record, leaving every other field alone. The in-memory flag
// is cleared even if persisting fails, since the password has already changed.
func (c *Controller) CompleteFirstAccess(ctx context.Context) error {
	c.mu.Lock()

	user, ok := c.store.User()
	if !ok {
		c.mu.Unlock()
		return model.ErrNoSession
	}
	if !user.FirstAccess {
		c.mu.Unlock()
		return nil
	}

	user.FirstAccess = false
	var persistErr error
	encoded, err := json.Marshal(user)
	if err != nil {
		persistErr = fmt.Errorf("encode user record: %w", err)
	} else if err := c.kv.Set(ctx, storage.KeyUser, string(encoded)); err != nil {
		persistErr = fmt.Errorf("persist user: %w", err)
	}

	c.store.clearFirstAccess()
	c.mu.Unlock()

	slog.Info("first access completed", "user_id", user.ID)
	c.publish(event.TypeSessionFirstAccessCleared, map[string]any{"user_id": user.ID})

	return persistErr
}

// ChangePassword runs the change-password exchange with the current bearer
// token and completes first access in the same call on success.
func (c *Controller) ChangePassword(ctx context.Context, newPassword string) error {
	c.Restore(ctx)

	token := c.store.Token()
	if token == "" {
		return &model.PasswordChangeError{Err: model.ErrNoSession}
	}

	if err := c.api.ChangePassword(ctx, token, newPassword); err != nil {
		slog.Warn("password change failed", "error", err)
		return err
	}

	if err := c.CompleteFirstAccess(ctx); err != nil && !errors.Is(err, model.ErrNoSession) {
		slog.Error("password changed but first access flag not persisted", "error", err)
	}

	return nil
}

func (c *Controller) publish(t event.Type, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.New(t, payload))
}

func (c *Controller) notify(ctx context.Context, n notice.Notice) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, n)
}
