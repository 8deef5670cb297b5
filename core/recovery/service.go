// Package recovery is the password reset flow: the user requests a reset email,
// enters the token it holds, then chooses a new password.
package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
)

// session keys
const (
	KeyEmail = "reset_email"
	KeyToken = "reset_token"
)

var (
	// errors
	ErrNotFound = errors.New("password reset session not found")
	ErrExpired  = core.NewRequestError("your password reset session has expired, please start again", nil)

	requestFailedText = "Failed to send the password reset email. Please try again."
	resetFailedText   = "Failed to reset the password. Please try again."
	tokenRequiredText = "Please enter the reset token"
)

type (
	// Session holds the reset_email & reset_token values across the flow.
	Session struct {
		ID        string            `json:"id"`
		Values    map[string]string `json:"values"`
		CreatedAt time.Time         `json:"created_at"`
	}

	Repository interface {
		CreateResetSession(ctx context.Context, sess Session) error
		GetResetSession(ctx context.Context, id string) (Session, error)
		UpdateResetSession(ctx context.Context, sess Session) error
		DeleteResetSession(ctx context.Context, id string) error
	}

	// AuthClient is the part of the external auth service resetting passwords.
	AuthClient interface {
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, email, token, password string) error
	}

	emailForm struct {
		Email string `json:"email" validate:"required,emailshape"`
	}

	Service struct {
		repo     Repository
		auth     AuthClient
		validate *registration.Validator
		logger   core.Logger
	}
)

func NewService(repo Repository, auth AuthClient, validate *registration.Validator, logger core.Logger) *Service {
	return &Service{repo: repo, auth: auth, validate: validate, logger: logger}
}

// Start requests a reset email and opens a session holding the email.
func (svc *Service) Start(ctx context.Context, email string) (Session, error) {
	email = core.CleanString(email, true /* lower */)
	if errs := svc.validate.Struct(emailForm{Email: email}); len(errs) > 0 {
		return Session{}, fieldErrors(errs)
	}

	if err := svc.auth.RequestPasswordReset(ctx, email); err != nil {
		return Session{}, registration.RemoteError(err, requestFailedText)
	}

	sess := Session{
		ID:        uuid.New().String(),
		Values:    map[string]string{KeyEmail: email},
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.repo.CreateResetSession(ctx, sess); err != nil {
		return Session{}, errors.Wrap(err, "creating reset session")
	}
	return sess, nil
}

// SetToken stores the (trimmed) reset token.
func (svc *Service) SetToken(ctx context.Context, id, token string) error {
	token = core.CleanString(token)
	if token == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: tokenRequiredText})
	}

	sess, err := svc.get(ctx, id)
	if err != nil {
		return err
	}
	sess.Values[KeyToken] = token
	return errors.Wrap(svc.repo.UpdateResetSession(ctx, sess), "updating reset session")
}

// Complete resets the password with the stored email & token. The session is deleted on success only.
func (svc *Service) Complete(ctx context.Context, id, password, confirm string) error {
	if errs := svc.validate.Password(password, confirm); len(errs) > 0 {
		return fieldErrors(errs)
	}

	sess, err := svc.get(ctx, id)
	if err != nil {
		return err
	}
	email, token := sess.Values[KeyEmail], sess.Values[KeyToken]
	if email == "" || token == "" {
		return ErrExpired
	}

	if err := svc.auth.ResetPassword(ctx, email, token, password); err != nil {
		return registration.RemoteError(err, resetFailedText)
	}

	if err := svc.repo.DeleteResetSession(ctx, id); err != nil {
		svc.logger.Warn("deleting reset session", errors.Wrap(err, "deleting reset session"))
	}
	return nil
}

func (svc *Service) get(ctx context.Context, id string) (Session, error) {
	sess, err := svc.repo.GetResetSession(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Session{}, ErrExpired
		}
		return Session{}, err
	}
	if sess.Values == nil {
		sess.Values = make(map[string]string, 2)
	}
	return sess, nil
}

func fieldErrors(errs map[string]string) error {
	flds := make([]core.FieldError, 0, len(errs))
	for fld, msg := range errs {
		flds = append(flds, core.FieldError{Field: fld, Error: msg})
	}
	return core.NewValidationError(nil, flds...)
}
