package password

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-console/internal/model"
	"clinic-console/internal/notice"
	"clinic-console/internal/session"
	"clinic-console/internal/testutil"
)

type fakeSession struct {
	mu          sync.Mutex
	firstAccess bool
	signedOut   bool
	userID      string
}

func (s *fakeSession) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedOut {
		return session.Snapshot{}
	}
	id := s.userID
	if id == "" {
		id = "p-1"
	}
	user := model.User{ID: id, Identity: model.PatientIdentity(), FirstAccess: s.firstAccess}
	return session.Snapshot{Signed: true, FirstAccess: s.firstAccess, User: &user}
}

func (s *fakeSession) set(signedOut bool, userID string) {
	s.mu.Lock()
	s.signedOut = signedOut
	s.userID = userID
	s.mu.Unlock()
}

// fakeChanger clears first access on success like the session controller does.
type fakeChanger struct {
	mu       sync.Mutex
	calls    int
	err      error
	sessions *fakeSession
	entered  chan struct{}
	release  chan struct{}
}

func (c *fakeChanger) ChangePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	c.calls++
	entered, release := c.entered, c.release
	c.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	if c.err != nil {
		return c.err
	}
	c.sessions.mu.Lock()
	c.sessions.firstAccess = false
	c.sessions.mu.Unlock()
	return nil
}

func (c *fakeChanger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestValidate(t *testing.T) {
	t.Parallel()

	var validation *model.ValidationError

	err := Validate("abcdef", "abcxyz")
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, model.ReasonMismatch, validation.Reason)

	err = Validate("abc", "abc")
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, model.ReasonTooShort, validation.Reason)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	for _, short := range []string{"ééé", "日本", "çãõáé"} {
		err = Validate(short, short)
		require.ErrorAs(t, err, &validation, short)
		assert.Equal(t, model.ReasonTooShort, validation.Reason, short)
	}

	assert.NoError(t, Validate("abcdef", "abcdef"))
	assert.NoError(t, Validate("senhaé", "senhaé"))
}

func TestSubmitValidationNeverCallsNetwork(t *testing.T) {
	t.Parallel()

	sessions := &fakeSession{firstAccess: true}
	changer := &fakeChanger{sessions: sessions}
	rec := &testutil.NoticeRecorder{}
	flow := NewFlow(changer, sessions, rec)

	var validation *model.ValidationError
	require.ErrorAs(t, flow.Submit(context.Background(), "abcdef", "abcxyz"), &validation)
	assert.Equal(t, model.ReasonMismatch, validation.Reason)

	require.ErrorAs(t, flow.Submit(context.Background(), "abc", "abc"), &validation)
	assert.Equal(t, model.ReasonTooShort, validation.Reason)

	require.ErrorAs(t, flow.Submit(context.Background(), "日本", "日本"), &validation)
	assert.Equal(t, model.ReasonTooShort, validation.Reason)

	assert.Zero(t, changer.count())
	assert.Equal(t, []notice.Notice{notice.PasswordMismatch, notice.PasswordTooShort, notice.PasswordTooShort}, rec.Notices())
	assert.True(t, sessions.Snapshot().FirstAccess)
}

func TestModalIsNotDismissableDuringFirstAccess(t *testing.T) {
	t.Parallel()

	sessions := &fakeSession{firstAccess: true}
	flow := NewFlow(&fakeChanger{sessions: sessions}, sessions, nil)

	assert.True(t, flow.IsOpen())
	assert.False(t, flow.Dismissable())
	assert.False(t, flow.Close())
	assert.True(t, flow.IsOpen())
}

func TestSubmitSuccessMakesModalDismissable(t *testing.T) {
	t.Parallel()

	sessions := &fakeSession{firstAccess: true}
	changer := &fakeChanger{sessions: sessions}
	rec := &testutil.NoticeRecorder{}
	flow := NewFlow(changer, sessions, rec)

	require.NoError(t, flow.Submit(context.Background(), "abcdef", "abcdef"))

	assert.Equal(t, 1, changer.count())
	assert.False(t, flow.IsOpen())
	assert.True(t, flow.Dismissable())
	last, _ := rec.Last()
	assert.Equal(t, notice.PasswordChanged, last)
}

func TestSubmitFailureKeepsModalOpen(t *testing.T) {
	t.Parallel()

	sessions := &fakeSession{firstAccess: true}
	changer := &fakeChanger{sessions: sessions, err: errors.New("policy rejected")}
	rec := &testutil.NoticeRecorder{}
	flow := NewFlow(changer, sessions, rec)

	err := flow.Submit(context.Background(), "abcdef", "abcdef")
	var changeErr *model.PasswordChangeError
	require.ErrorAs(t, err, &changeErr)

	assert.True(t, flow.IsOpen())
	assert.False(t, flow.Close())
	last, _ := rec.Last()
	assert.Equal(t, notice.PasswordChangeFail, last)
}

func TestSubmitAtMostOneInFlight(t *testing.T) {
	t.Parallel()

	sessions := &fakeSession{firstAccess: true}
	changer := &fakeChanger{sessions: sessions, entered: make(chan struct{}), release: make(chan struct{})}
	flow := NewFlow(changer, sessions, nil)

	done := make(chan error, 1)
	go func() {
		done <- flow.Submit(context.Background(), "abcdef", "abcdef")
	}()

	<-changer.entered
	assert.True(t, flow.Status().Submitting)
	require.ErrorIs(t, flow.Submit(context.Background(), "abcdef", "abcdef"), model.ErrInFlight)

	close(changer.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, changer.count())
	assert.False(t, flow.Status().Submitting)
}

func TestVoluntaryChangeCanBeDismissed(t *testing.T) {
	t.Parallel()

	sessions := &fakeSession{}
	flow := NewFlow(&fakeChanger{sessions: sessions}, sessions, nil)

	assert.False(t, flow.IsOpen())
	flow.Open()
	assert.True(t, flow.IsOpen())
	assert.True(t, flow.Close())
	assert.False(t, flow.IsOpen())
}

func TestOpenModalBelongsToTheSignedUser(t *testing.T) {
	t.Parallel()

	sessions := &fakeSession{}
	flow := NewFlow(&fakeChanger{sessions: sessions}, sessions, nil)

	flow.Open()
	require.True(t, flow.IsOpen())

	sessions.set(true, "")
	assert.False(t, flow.IsOpen())
	assert.False(t, flow.Status().Open)

	sessions.set(false, "")
	assert.False(t, flow.IsOpen(), "closed modal must not reappear after signing back in")

	flow.Open()
	require.True(t, flow.IsOpen())
	sessions.set(false, "s-2")
	assert.False(t, flow.IsOpen())

	sessions.set(true, "")
	flow.Open()
	assert.False(t, flow.IsOpen())
}
