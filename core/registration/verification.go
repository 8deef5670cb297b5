package registration

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
)

var (
	sendFailedText     = "Failed to send the verification email. Please try again."
	sendSucceededText  = "Verification email sent. Please check your inbox."
	verifyFailedText   = "Email verification failed. Please try again."
	tokenRequiredText  = "Please enter the verification token"
	errNoEmailToVerify = core.NewRequestError("there is no email address to verify", nil)
)

// LoginRoutes maps each role to its login route, the destination of a verified registration.
type LoginRoutes map[Role]string

// Verifier is the email verification sub-flow of the verification step.
type Verifier struct {
	auth    AuthClient
	ledger  SubmissionRepository
	routes  LoginRoutes
	metrics Metrics
	logger  core.Logger
}

func NewVerifier(auth AuthClient, ledger SubmissionRepository, routes LoginRoutes, metrics Metrics, logger core.Logger) *Verifier {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Verifier{auth: auth, ledger: ledger, routes: routes, metrics: metrics, logger: logger}
}

// AutoSend issues the automatic verification send of the current mount, at most once.
// The guard is set and persisted before the send is issued: a concurrent or repeated call sees it and skips.
// It reports whether a send was issued. Send failures are kept as a dismissible error, never returned.
// When the guard cannot be persisted, no send is issued and the failure is kept as a dismissible error:
// the user can still resend.
func (v *Verifier) AutoSend(ctx context.Context, sess *Session, persist func(*Session) error) bool {
	if sess.Verification.AutoSent || sess.Verification.Verified {
		return false
	}
	email := core.CleanString(sess.Draft.Email)
	if email == "" {
		return false
	}

	sess.Verification.AutoSent = true
	if err := persist(sess); err != nil {
		v.logger.Warn("persisting verification guard", errors.Wrap(err, "persisting verification guard"), sess)
		v.metrics.VerificationSent(true, false)
		sess.Verification.Message = ""
		sess.Verification.Error = sendFailedText
		return false
	}

	v.send(ctx, sess, email, true)
	return true
}

// Resend sends the verification email again, regardless of the automatic send guard.
// Every call issues exactly one send and reports its own outcome.
func (v *Verifier) Resend(ctx context.Context, sess *Session) (Notice, error) {
	email := core.CleanString(sess.Draft.Email)
	if email == "" {
		return Notice{}, errNoEmailToVerify
	}
	return v.send(ctx, sess, email, false), nil
}

func (v *Verifier) send(ctx context.Context, sess *Session, email string, auto bool) Notice {
	sess.Verification.Sends++

	notice, err := v.auth.SendStudentVerificationEmail(ctx, email)
	switch {
	case err != nil:
		notice = Notice{Success: false, Message: RemoteMessage(err, sendFailedText)}
		v.logger.Warn("sending verification email", errors.Wrap(err, "sending verification email"), sess)
	case !notice.Success:
		if notice.Message == "" {
			notice.Message = sendFailedText
		}
	case notice.Message == "":
		notice.Message = sendSucceededText
	}
	v.metrics.VerificationSent(auto, notice.Success)

	if notice.Success {
		sess.Verification.Message = notice.Message
		sess.Verification.Error = ""
	} else {
		sess.Verification.Message = ""
		sess.Verification.Error = notice.Message
	}
	return notice
}

// Verify submits the (trimmed) token. On success, the wizard moves to its terminal step and the login route
// of the role is returned. On failure, the step is unchanged and the server message (or a fallback) is
// both kept as a dismissible error and returned as a *core.RequestError.
func (v *Verifier) Verify(ctx context.Context, sess *Session, token string) (string, error) {
	token = core.CleanString(token)
	if token == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: "token", Error: tokenRequiredText})
	}

	notice, err := v.auth.VerifyStudentEmail(ctx, token)
	if err == nil && !notice.Success {
		msg := notice.Message
		if msg == "" {
			msg = verifyFailedText
		}
		err = core.NewRequestError(msg, nil)
	}
	if err != nil {
		v.metrics.Verified(false)
		msg := RemoteMessage(err, verifyFailedText)
		sess.Verification.Error = msg
		sess.Verification.Message = ""
		return "", core.NewRequestError(msg, nil)
	}
	v.metrics.Verified(true)

	sess.Verification.Verified = true
	sess.Verification.Error = ""
	sess.Verification.Message = notice.Message
	sess.Step++ // verified: the terminal step

	if err := v.ledger.MarkVerified(ctx, sess.ID, time.Now().UTC()); err != nil && err != ErrSubmissionNotFound {
		v.logger.Error("marking submission verified", errors.Wrap(err, "marking submission verified"), sess)
	}
	return v.routes[sess.Role], nil
}

// DismissError clears the inline verification error.
func (v *Verifier) DismissError(sess *Session) {
	sess.Verification.Error = ""
}
