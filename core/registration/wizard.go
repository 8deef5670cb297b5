package registration

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
)

var (
	// errors
	ErrInvalidRole         = core.NewRequestError("role must be one of: student, teacher", nil)
	ErrRoleLocked          = core.NewRequestError("the role can only be selected on the first step", nil)
	ErrNoRole              = core.NewRequestError("please select a role first", nil)
	ErrAlreadySubmitted    = core.NewRequestError("the registration has already been submitted", nil)
	ErrCompleted           = core.NewRequestError("the registration is complete", nil)
	ErrVerificationPending = core.NewRequestError("please verify your email address to continue", nil)
	ErrNotVerificationStep = core.NewRequestError("email verification is not the current step", nil)
	ErrCVNotOnStep         = core.NewRequestError("the CV cannot be uploaded on the current step", nil)

	errFieldNotOnStepText  = "This field cannot be edited on the current step"
	errUnknownStepTemplate = "unknown step %d for role %q"
)

// SubmissionDispatcher hands a complete draft over to the auth service.
type SubmissionDispatcher interface {
	Dispatch(ctx context.Context, sess *Session) error
}

// Wizard is the wizard controller: it drives the transitions of a Session.
// It does not persist anything, see Service.
type Wizard struct {
	steps      *StepRegistry
	dispatcher SubmissionDispatcher
	now        func() time.Time
}

func NewWizard(steps *StepRegistry, dispatcher SubmissionDispatcher) *Wizard {
	return &Wizard{steps: steps, dispatcher: dispatcher, now: func() time.Time { return time.Now().UTC() }}
}

// Current returns the active step of the session.
func (w *Wizard) Current(sess *Session) (Step, error) {
	step, ok := w.steps.Step(sess.Role, sess.Step)
	if !ok {
		return Step{}, errors.Errorf(errUnknownStepTemplate, sess.Step, sess.Role)
	}
	return step, nil
}

// SelectRole binds the role's steps and moves to step 1. Only allowed on step 0.
func (w *Wizard) SelectRole(sess *Session, role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if sess.Step != 0 {
		return ErrRoleLocked
	}
	if sess.Submitted() {
		return ErrAlreadySubmitted
	}
	sess.Role = role
	sess.Step = 1
	return nil
}

// Update writes the patch into the draft.
// Only the active step fields may be written: otherwise nothing is written and a validation error is returned.
func (w *Wizard) Update(sess *Session, patch DraftPatch) error {
	if sess.Submitted() {
		return ErrAlreadySubmitted
	}
	step, err := w.Current(sess)
	if err != nil {
		return err
	}

	var flds []core.FieldError
	for _, fld := range patch.Fields() {
		if !step.Writable(fld) {
			flds = append(flds, core.FieldError{Field: fld, Error: errFieldNotOnStepText})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}

	sess.Draft.Apply(patch)
	return nil
}

// AttachCV sets the draft CV and returns the replaced one, if any.
func (w *Wizard) AttachCV(sess *Session, cv FileRef) (*FileRef, error) {
	if sess.Submitted() {
		return nil, ErrAlreadySubmitted
	}
	step, err := w.Current(sess)
	if err != nil {
		return nil, err
	}
	if !step.Writable("cv") {
		return nil, ErrCVNotOnStep
	}
	old := sess.Draft.CV
	sess.Draft.CV = &cv
	return old, nil
}

// Advance validates the active step against the draft and moves to the next step.
// A refused transition stores the errors in the session and returns them as a *core.ValidationError.
// On a submitting step, the draft is dispatched first: a failed dispatch keeps the current step.
// The returned Step is the active one after the call.
func (w *Wizard) Advance(ctx context.Context, sess *Session) (Step, error) {
	step, err := w.Current(sess)
	if err != nil {
		return Step{}, err
	}
	switch {
	case step.Terminal:
		return step, ErrCompleted
	case step.Verifies:
		return step, ErrVerificationPending
	case sess.Step == 0 && !sess.Role.Valid():
		return step, ErrNoRole
	}

	sess.Errors = nil
	if step.Validate != nil {
		if errs := step.Validate(sess.Draft); len(errs) > 0 {
			sess.Errors = errs
			return step, newStepValidationError(errs)
		}
	}

	if step.Submits && !sess.Submitted() {
		if err := w.dispatcher.Dispatch(ctx, sess); err != nil {
			return step, err
		}
		sess.SubmittedAt = w.now()
	}

	sess.Step++
	next, err := w.Current(sess)
	if err != nil {
		return Step{}, err
	}
	if next.Verifies {
		// (re)entering the verification step is a new mount
		sess.Verification = VerificationState{}
	}
	return next, nil
}

// Retreat moves to the previous step, floored at 0.
// It never validates, and leaves both the draft and the stored errors untouched.
func (w *Wizard) Retreat(sess *Session) error {
	step, err := w.Current(sess)
	if err != nil {
		return err
	}
	if step.Terminal {
		return ErrCompleted
	}
	if sess.Step > 0 {
		sess.Step--
	}
	return nil
}

// Restart remounts the wizard: the role, the draft and every state are dropped.
// It returns the dropped CV, if any.
func (w *Wizard) Restart(sess *Session) *FileRef {
	cv := sess.Draft.CV
	*sess = Session{ID: sess.ID, CreatedAt: sess.CreatedAt, UpdatedAt: sess.UpdatedAt}
	return cv
}

func newStepValidationError(errs map[string]string) error {
	flds := make([]core.FieldError, 0, len(errs))
	for fld, msg := range errs {
		flds = append(flds, core.FieldError{Field: fld, Error: msg})
	}
	sort.Slice(flds, func(i, j int) bool { return flds[i].Field < flds[j].Field })
	return core.NewValidationError(nil, flds...)
}
