package recovery

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func (r *memRepo) CreateResetSession(_ context.Context, sess Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]Session)
	}
	r.sessions[sess.ID] = copySession(sess)
	return nil
}

func (r *memRepo) GetResetSession(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return copySession(sess), nil
}

func (r *memRepo) UpdateResetSession(ctx context.Context, sess Session) error {
	return r.CreateResetSession(ctx, sess)
}

func (r *memRepo) DeleteResetSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func copySession(sess Session) Session {
	vals := make(map[string]string, len(sess.Values))
	for k, v := range sess.Values {
		vals[k] = v
	}
	sess.Values = vals
	return sess
}

type serverErr string

func (e serverErr) Error() string         { return string(e) }
func (e serverErr) RemoteMessage() string { return string(e) }

type fakeAuth struct {
	requested []string
	resets    [][3]string
	resetErr  error
}

func (a *fakeAuth) RequestPasswordReset(_ context.Context, email string) error {
	a.requested = append(a.requested, email)
	return nil
}

func (a *fakeAuth) ResetPassword(_ context.Context, email, token, password string) error {
	if a.resetErr != nil {
		return a.resetErr
	}
	a.resets = append(a.resets, [3]string{email, token, password})
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestService() (*Service, *memRepo, *fakeAuth) {
	repo, auth := new(memRepo), new(fakeAuth)
	validate := registration.NewValidator(core.NewTranslator())
	return NewService(repo, auth, validate, nopLogger{}), repo, auth
}

func TestService_resetFlow(t *testing.T) {
	svc, repo, auth := newTestService()
	ctx := context.Background()

	sess, err := svc.Start(ctx, " Amine@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, []string{"amine@example.com"}, auth.requested)
	assert.Equal(t, map[string]string{KeyEmail: "amine@example.com"}, repo.sessions[sess.ID].Values)

	require.NoError(t, svc.SetToken(ctx, sess.ID, " 98595fe6-e349-4153-ae4f-b1653cc90661\n"))
	assert.Equal(t, "98595fe6-e349-4153-ae4f-b1653cc90661", repo.sessions[sess.ID].Values[KeyToken])
	assert.Len(t, repo.sessions[sess.ID].Values, 2)

	require.NoError(t, svc.Complete(ctx, sess.ID, "NewPass99", "NewPass99"))
	assert.Equal(t, [][3]string{{"amine@example.com", "98595fe6-e349-4153-ae4f-b1653cc90661", "NewPass99"}}, auth.resets)
	assert.NotContains(t, repo.sessions, sess.ID, "deleted on success")

	// read once
	assert.Equal(t, ErrExpired, svc.Complete(ctx, sess.ID, "NewPass99", "NewPass99"))
}

func TestService_Start_invalidEmail(t *testing.T) {
	svc, _, auth := newTestService()

	_, err := svc.Start(context.Background(), "amine@")
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"email": "Please enter a valid email address"}, vErr.FieldErrors())
	assert.Empty(t, auth.requested)
}

func TestService_Complete_failures(t *testing.T) {
	ctx := context.Background()

	t.Run("weak password", func(t *testing.T) {
		svc, _, _ := newTestService()
		err := svc.Complete(ctx, "any", "short", "short")
		vErr, ok := errors.Cause(err).(*core.ValidationError)
		require.True(t, ok)
		assert.Equal(t, "Password must be at least 8 characters", vErr.FieldErrors()["password"])
	})

	t.Run("missing token", func(t *testing.T) {
		svc, _, _ := newTestService()
		sess, err := svc.Start(ctx, "a@b.co")
		require.NoError(t, err)
		assert.Equal(t, ErrExpired, svc.Complete(ctx, sess.ID, "NewPass99", "NewPass99"))
	})

	t.Run("server refusal keeps the session", func(t *testing.T) {
		svc, repo, auth := newTestService()
		auth.resetErr = serverErr("Invalid reset token")
		sess, err := svc.Start(ctx, "a@b.co")
		require.NoError(t, err)
		require.NoError(t, svc.SetToken(ctx, sess.ID, "tok"))

		err = svc.Complete(ctx, sess.ID, "NewPass99", "NewPass99")
		var reqErr *core.RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, "Invalid reset token", reqErr.Message)
		assert.Contains(t, repo.sessions, sess.ID)
	})
}
