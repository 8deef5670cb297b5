package registration

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
)

var (
	// errors
	ErrSessionNotFound    = errors.New("registration session not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrFileNotFound       = errors.New("file not found")
)

type (
	// Repository stores wizard sessions.
	Repository interface {
		CreateSession(ctx context.Context, sess Session) error
		GetSession(ctx context.Context, id string) (Session, error)
		UpdateSession(ctx context.Context, sess Session) error
		DeleteSession(ctx context.Context, id string) error
	}

	// SubmissionRepository is the ledger of the drafts accepted by the auth service.
	SubmissionRepository interface {
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		MarkVerified(ctx context.Context, sessionID string, at time.Time) error
		// QuerySubmissions applies AND operation on available QueryFilter fields.
		QuerySubmissions(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Submission, error)
	}

	// FileStore holds the uploaded CVs.
	FileStore interface {
		Save(ctx context.Context, name, contentType string, r io.Reader) (FileRef, error)
		Open(ctx context.Context, id string) (io.ReadCloser, error)
		Delete(ctx context.Context, id string) error
	}

	// AuthClient is the external auth service.
	// Errors carrying a server message implement `RemoteMessage() string`.
	AuthClient interface {
		RegisterStudent(ctx context.Context, reg StudentRegistration) error
		RegisterProfessor(ctx context.Context, reg ProfessorRegistration, cv io.Reader, cvName string) error
		SendStudentVerificationEmail(ctx context.Context, email string) (Notice, error)
		VerifyStudentEmail(ctx context.Context, token string) (Notice, error)
	}

	// Locker serialises the requests mutating a same session.
	Locker interface {
		Lock(ctx context.Context, key string) (unlock func(), err error)
	}

	Metrics interface {
		SessionStarted()
		StepAdvanced(role Role, step string)
		StepRefused(role Role, step string)
		Submitted(role Role, ok bool)
		VerificationSent(auto, ok bool)
		Verified(ok bool)
	}

	// NopMetrics records nothing.
	NopMetrics struct{}
)

func (NopMetrics) SessionStarted()             {}
func (NopMetrics) StepAdvanced(Role, string)   {}
func (NopMetrics) StepRefused(Role, string)    {}
func (NopMetrics) Submitted(Role, bool)        {}
func (NopMetrics) VerificationSent(bool, bool) {}
func (NopMetrics) Verified(bool)               {}

type remoteMessager interface {
	RemoteMessage() string
}

// RemoteMessage returns the server message carried by `err`, or `fallback`.
func RemoteMessage(err error, fallback string) string {
	var rm remoteMessager
	if errors.As(err, &rm) && rm.RemoteMessage() != "" {
		return rm.RemoteMessage()
	}
	var reqErr *core.RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return fallback
}

// RemoteError wraps an auth service failure into a *core.RequestError holding the message to show.
func RemoteError(err error, fallback string) error {
	return core.NewRequestError(RemoteMessage(err, fallback), err)
}

type (
	Deps struct {
		Repo     Repository
		Ledger   SubmissionRepository
		Files    FileStore
		Auth     AuthClient
		Mailer   core.EmailService
		Locker   Locker
		Metrics  Metrics
		Logger   core.Logger
		Routes   LoginRoutes
		Validate *Validator
	}

	ServiceInterface interface {
		Start(ctx context.Context) (Session, error)
		Get(ctx context.Context, id string) (Session, error)
		Discard(ctx context.Context, id string) error
		SelectRole(ctx context.Context, id string, role Role) (Session, error)
		Update(ctx context.Context, id string, patch DraftPatch) (Session, error)
		UploadCV(ctx context.Context, id, name, contentType string, r io.Reader) (Session, error)
		Advance(ctx context.Context, id string) (Session, error)
		Retreat(ctx context.Context, id string) (Session, error)
		Restart(ctx context.Context, id string) (Session, error)
		ResendVerification(ctx context.Context, id string) (Session, Notice, error)
		VerifyEmail(ctx context.Context, id, token string) (Session, string, error)
		DismissVerificationError(ctx context.Context, id string) (Session, error)
		Steps(role Role) []string
	}

	// Service runs the wizard of the sessions held by its Repository.
	// Every mutation loads the session, runs under the session lock and is saved, refused transitions included.
	Service struct {
		repo     Repository
		ledger   SubmissionRepository
		files    FileStore
		locker   Locker
		metrics  Metrics
		logger   core.Logger
		steps    *StepRegistry
		wizard   *Wizard
		verifier *Verifier
		now      func() time.Time
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.Ledger, "Ledger"),
		vala.IsNotNil(deps.Files, "Files"),
		vala.IsNotNil(deps.Auth, "Auth"),
		vala.IsNotNil(deps.Mailer, "Mailer"),
		vala.IsNotNil(deps.Locker, "Locker"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
	).CheckAndPanic()

	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	steps := NewStepRegistry(deps.Validate)
	dispatcher := NewDispatcher(deps.Auth, deps.Files, deps.Ledger, deps.Mailer, deps.Routes, deps.Logger)

	return &Service{
		repo:     deps.Repo,
		ledger:   deps.Ledger,
		files:    deps.Files,
		locker:   deps.Locker,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		steps:    steps,
		wizard:   NewWizard(steps, dispatcher),
		verifier: NewVerifier(deps.Auth, deps.Ledger, deps.Routes, deps.Metrics, deps.Logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (svc *Service) Start(ctx context.Context) (Session, error) {
	now := svc.now()
	sess := Session{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now}
	if err := svc.repo.CreateSession(ctx, sess); err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	svc.metrics.SessionStarted()
	return sess, nil
}

// Get returns the session. On the verification step, the automatic send is issued if it has not been yet.
func (svc *Service) Get(ctx context.Context, id string) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		svc.autoSend(ctx, sess)
		return nil
	})
}

// Discard deletes the session and its uploaded CV.
func (svc *Service) Discard(ctx context.Context, id string) error {
	unlock, err := svc.locker.Lock(ctx, id)
	if err != nil {
		return errors.Wrap(err, "locking session")
	}
	defer unlock()

	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return err
	}
	svc.deleteFile(ctx, sess.Draft.CV)
	return svc.repo.DeleteSession(ctx, id)
}

func (svc *Service) SelectRole(ctx context.Context, id string, role Role) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		return svc.wizard.SelectRole(sess, role)
	})
}

func (svc *Service) Update(ctx context.Context, id string, patch DraftPatch) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		return svc.wizard.Update(sess, patch)
	})
}

// UploadCV stores the CV and attaches it to the draft. A previously uploaded CV is deleted.
func (svc *Service) UploadCV(ctx context.Context, id, name, contentType string, r io.Reader) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		// fail before storing anything when the CV cannot be attached
		if _, err := svc.wizard.AttachCV(sess.clone(), FileRef{}); err != nil {
			return err
		}
		ref, err := svc.files.Save(ctx, name, contentType, r)
		if err != nil {
			return errors.Wrap(err, "saving cv")
		}
		old, err := svc.wizard.AttachCV(sess, ref)
		if err != nil {
			svc.deleteFile(ctx, &ref)
			return err
		}
		svc.deleteFile(ctx, old)
		return nil
	})
}

func (svc *Service) Advance(ctx context.Context, id string) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		from, _ := svc.wizard.Current(sess)
		submitted := sess.Submitted()

		step, err := svc.wizard.Advance(ctx, sess)
		if _, refused := errors.Cause(err).(*core.ValidationError); refused {
			svc.metrics.StepRefused(sess.Role, from.Name)
			return err
		}
		if from.Submits && !submitted {
			svc.metrics.Submitted(sess.Role, sess.Submitted())
		}
		if err != nil {
			return err
		}
		svc.metrics.StepAdvanced(sess.Role, from.Name)

		if step.Verifies {
			svc.autoSend(ctx, sess)
		}
		return nil
	})
}

func (svc *Service) Retreat(ctx context.Context, id string) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		return svc.wizard.Retreat(sess)
	})
}

func (svc *Service) Restart(ctx context.Context, id string) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		svc.deleteFile(ctx, svc.wizard.Restart(sess))
		return nil
	})
}

func (svc *Service) ResendVerification(ctx context.Context, id string) (Session, Notice, error) {
	var notice Notice
	sess, err := svc.mutate(ctx, id, func(sess *Session) error {
		if err := svc.checkVerificationStep(sess); err != nil {
			return err
		}
		var err error
		notice, err = svc.verifier.Resend(ctx, sess)
		return err
	})
	return sess, notice, err
}

// VerifyEmail verifies the token and returns the login route to redirect to.
func (svc *Service) VerifyEmail(ctx context.Context, id, token string) (Session, string, error) {
	var redirect string
	sess, err := svc.mutate(ctx, id, func(sess *Session) error {
		if err := svc.checkVerificationStep(sess); err != nil {
			return err
		}
		var err error
		redirect, err = svc.verifier.Verify(ctx, sess, token)
		return err
	})
	return sess, redirect, err
}

func (svc *Service) DismissVerificationError(ctx context.Context, id string) (Session, error) {
	return svc.mutate(ctx, id, func(sess *Session) error {
		svc.verifier.DismissError(sess)
		return nil
	})
}

// Steps returns the step names of the role's wizard.
func (svc *Service) Steps(role Role) []string {
	return svc.steps.Names(role)
}

func (svc *Service) checkVerificationStep(sess *Session) error {
	step, err := svc.wizard.Current(sess)
	if err != nil {
		return err
	}
	if !step.Verifies {
		return ErrNotVerificationStep
	}
	return nil
}

func (svc *Service) autoSend(ctx context.Context, sess *Session) {
	if step, err := svc.wizard.Current(sess); err != nil || !step.Verifies {
		return
	}
	svc.verifier.AutoSend(ctx, sess, func(s *Session) error {
		return svc.save(ctx, s)
	})
}

// mutate runs fn on the locked session, then saves it. The error of fn is returned along the saved session.
func (svc *Service) mutate(ctx context.Context, id string, fn func(sess *Session) error) (Session, error) {
	unlock, err := svc.locker.Lock(ctx, id)
	if err != nil {
		return Session{}, errors.Wrap(err, "locking session")
	}
	defer unlock()

	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	before := sess.clone()

	fnErr := fn(&sess)
	if !sess.equal(before) {
		if err := svc.save(ctx, &sess); err != nil {
			return Session{}, err
		}
	}
	return sess, fnErr
}

func (svc *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = svc.now()
	return errors.Wrap(svc.repo.UpdateSession(ctx, *sess), "saving session")
}

func (svc *Service) deleteFile(ctx context.Context, ref *FileRef) {
	if ref == nil || ref.ID == "" {
		return
	}
	if err := svc.files.Delete(ctx, ref.ID); err != nil && errors.Cause(err) != ErrFileNotFound {
		svc.logger.Warn("deleting file", errors.Wrap(err, "deleting file "+ref.ID))
	}
}
