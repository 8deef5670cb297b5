package registration

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
)

var (
	submissionFailedText = "Registration failed. Please try again."
	dateLayouts          = []string{"2006-01-02", time.RFC3339, "02/01/2006"}
)

// SubmitFunc submits the draft of a session to the auth service.
type SubmitFunc func(ctx context.Context, sess *Session) error

// Dispatcher is the SubmissionDispatcher: it picks the submit function of the session role,
// then records the accepted submission in the ledger.
// Nothing is retried nor rolled back.
type Dispatcher struct {
	auth    AuthClient
	files   FileStore
	ledger  SubmissionRepository
	mailer  core.EmailService
	routes  LoginRoutes
	logger  core.Logger
	submits map[Role]SubmitFunc
}

func NewDispatcher(
	auth AuthClient,
	files FileStore,
	ledger SubmissionRepository,
	mailer core.EmailService,
	routes LoginRoutes,
	logger core.Logger,
) *Dispatcher {
	d := &Dispatcher{auth: auth, files: files, ledger: ledger, mailer: mailer, routes: routes, logger: logger}
	d.submits = map[Role]SubmitFunc{
		RoleStudent: d.submitStudent,
		RoleTeacher: d.submitTeacher,
	}
	return d
}

var _ SubmissionDispatcher = (*Dispatcher)(nil)

// For returns the submit function bound to `role`.
func (d *Dispatcher) For(role Role) (SubmitFunc, bool) {
	fn, ok := d.submits[role]
	return fn, ok
}

func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session) error {
	submit, ok := d.For(sess.Role)
	if !ok {
		return ErrNoRole
	}
	if err := submit(ctx, sess); err != nil {
		return err
	}

	sub := Submission{
		SessionID:   sess.ID,
		Role:        sess.Role,
		Email:       core.CleanString(sess.Draft.Email, true /* lower */),
		FirstName:   core.CleanString(sess.Draft.FirstName),
		LastName:    core.CleanString(sess.Draft.LastName),
		Status:      StatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	// the auth service accepted the draft: a ledger failure must not fail the registration
	if _, err := d.ledger.CreateSubmission(ctx, sub); err != nil {
		d.logger.Error("recording submission", errors.Wrap(err, "creating submission"), sess)
	}
	return nil
}

func (d *Dispatcher) submitStudent(ctx context.Context, sess *Session) error {
	draft := sess.Draft
	reg := StudentRegistration{
		FirstName:      core.CleanString(draft.FirstName),
		LastName:       core.CleanString(draft.LastName),
		PhoneNumber:    core.CleanString(draft.PhoneNumber),
		Email:          core.CleanString(draft.Email, true /* lower */),
		Password:       draft.Password,
		AcademicStream: core.CleanString(draft.AcademicStream),
		Wilaya:         core.CleanString(draft.Wilaya),
	}
	if err := d.auth.RegisterStudent(ctx, reg); err != nil {
		return RemoteError(err, submissionFailedText)
	}
	return nil
}

func (d *Dispatcher) submitTeacher(ctx context.Context, sess *Session) error {
	draft := sess.Draft
	if draft.CV == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "cv", Error: messages["cv"]["required"]})
	}

	reg := ProfessorRegistration{
		FirstName:              core.CleanString(draft.FirstName),
		LastName:               core.CleanString(draft.LastName),
		PhoneNumber:            core.CleanString(draft.PhoneNumber),
		Email:                  core.CleanString(draft.Email, true /* lower */),
		Password:               draft.Password,
		Gender:                 core.CleanString(draft.Gender, true /* lower */),
		DateOfBirth:            NormalizeDate(draft.DateOfBirth),
		HighSchoolExperience:   deref(draft.HighSchoolExperience),
		OffSchoolExperience:    deref(draft.OffSchoolExperience),
		OnlineSchoolExperience: deref(draft.OnlineSchoolExperience),
	}
	if reg.HighSchoolExperience && draft.HighSchoolExperienceNum != nil {
		reg.HighSchoolExperienceNum = *draft.HighSchoolExperienceNum
	}

	cv, err := d.files.Open(ctx, draft.CV.ID)
	if err != nil {
		return errors.Wrap(err, "opening cv")
	}
	defer cv.Close()

	if err := d.auth.RegisterProfessor(ctx, reg, cv, draft.CV.Name); err != nil {
		return RemoteError(err, submissionFailedText)
	}

	d.sendApplicationReceived(sess)
	return nil
}

func (d *Dispatcher) sendApplicationReceived(sess *Session) {
	email := core.CleanString(sess.Draft.Email, true /* lower */)
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: sess.Draft.FullName(), Address: email}},
		Subject:      "We received your application",
		TemplateName: "application_received",
		TemplateData: map[string]interface{}{
			"FirstName":  core.CleanString(sess.Draft.FirstName),
			"Email":      email,
			"LoginRoute": d.routes[RoleTeacher],
		},
	}
	d.mailer.SendMessages(msg)
}

// NormalizeDate converts a date (YYYY-MM-DD, RFC 3339 or DD/MM/YYYY) to an RFC 3339 date-time at UTC midnight.
// Values that cannot be parsed are returned trimmed, for the auth service to reject.
func NormalizeDate(val string) string {
	val = core.CleanString(val)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			y, m, day := t.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
		}
	}
	return val
}

func deref(b *bool) bool {
	return b != nil && *b
}
