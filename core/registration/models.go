package registration

import (
	"reflect"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// FileRef points to a file held by a FileStore.
type FileRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Draft accumulates the values entered across the wizard steps.
// A field that has not been visited yet is absent (zero string / nil pointer), never defaulted.
type Draft struct {
	// common identity
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	Email           string `json:"email,omitempty"`
	Password        string `json:"password,omitempty"`
	ConfirmPassword string `json:"confirm_password,omitempty"`

	// student
	AcademicStream string `json:"academic_stream,omitempty"`
	Wilaya         string `json:"wilaya,omitempty"`

	// teacher
	Gender                  string   `json:"gender,omitempty"`
	DateOfBirth             string   `json:"date_of_birth,omitempty"`
	HighSchoolExperience    *bool    `json:"highSchool_experience,omitempty"`
	HighSchoolExperienceNum *int     `json:"highSchool_experience_num,omitempty"`
	OffSchoolExperience     *bool    `json:"offSchool_experience,omitempty"`
	OnlineSchoolExperience  *bool    `json:"onlineSchool_experience,omitempty"`
	CV                      *FileRef `json:"cv,omitempty"`
}

// Clone returns a deep copy of the draft.
func (d Draft) Clone() Draft {
	c := d
	c.HighSchoolExperience = cloneBool(d.HighSchoolExperience)
	c.HighSchoolExperienceNum = cloneInt(d.HighSchoolExperienceNum)
	c.OffSchoolExperience = cloneBool(d.OffSchoolExperience)
	c.OnlineSchoolExperience = cloneBool(d.OnlineSchoolExperience)
	if d.CV != nil {
		cv := *d.CV
		c.CV = &cv
	}
	return c
}

// Redacted returns a copy safe to be shown or logged: passwords are blanked.
func (d Draft) Redacted() Draft {
	c := d.Clone()
	if c.Password != "" {
		c.Password = "********"
	}
	if c.ConfirmPassword != "" {
		c.ConfirmPassword = "********"
	}
	return c
}

// FullName returns "first last".
func (d Draft) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(d.FirstName) + " " + strings.TrimSpace(d.LastName))
}

// DraftPatch holds the values written by the active step. Only non-nil fields are written.
// The CV cannot be patched: it is only set by an upload.
type DraftPatch struct {
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	PhoneNumber     *string `json:"phone_number"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirm_password"`

	AcademicStream *string `json:"academic_stream"`
	Wilaya         *string `json:"wilaya"`

	Gender                  *string `json:"gender"`
	DateOfBirth             *string `json:"date_of_birth"`
	HighSchoolExperience    *bool   `json:"highSchool_experience"`
	HighSchoolExperienceNum *int    `json:"highSchool_experience_num"`
	OffSchoolExperience     *bool   `json:"offSchool_experience"`
	OnlineSchoolExperience  *bool   `json:"onlineSchool_experience"`
}

// Fields returns the json names of the fields set in the patch.
func (p DraftPatch) Fields() []string {
	val := reflect.ValueOf(p)
	typ := val.Type()
	flds := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		if !val.Field(i).IsNil() {
			flds = append(flds, jsonName(typ.Field(i)))
		}
	}
	return flds
}

// Apply writes the set fields of `p` into the draft. Other fields, the CV included, are left untouched.
func (d *Draft) Apply(p DraftPatch) {
	pVal := reflect.ValueOf(p)
	pTyp := pVal.Type()
	dVal := reflect.ValueOf(d).Elem()
	for i := 0; i < pTyp.NumField(); i++ {
		fld := pVal.Field(i)
		if fld.IsNil() {
			continue
		}
		target := dVal.FieldByName(pTyp.Field(i).Name)
		if target.Kind() == reflect.Ptr {
			// copy the pointed value so the draft never aliases the patch
			cp := reflect.New(fld.Elem().Type())
			cp.Elem().Set(fld.Elem())
			target.Set(cp)
		} else {
			target.Set(fld.Elem())
		}
	}
}

func jsonName(fld reflect.StructField) string {
	return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// VerificationState is the state of the email verification step.
type VerificationState struct {
	// AutoSent guards the automatic send: set before the send is issued, reset when the step is (re)entered.
	AutoSent bool   `json:"auto_sent"`
	Sends    int    `json:"sends"`
	Message  string `json:"message,omitempty"` // transient confirmation
	Error    string `json:"error,omitempty"`   // dismissible inline error
	Verified bool   `json:"verified"`
}

// Session is a wizard session: the wizard state and the draft it owns.
type Session struct {
	ID           string            `json:"id"`
	Role         Role              `json:"role,omitempty"`
	Step         int               `json:"step"`
	Draft        Draft             `json:"draft"`
	Errors       map[string]string `json:"errors,omitempty"`
	Verification VerificationState `json:"verification"`
	SubmittedAt  time.Time         `json:"submitted_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Submitted reports whether the draft has been handed over to the auth service.
func (s *Session) Submitted() bool { return !s.SubmittedAt.IsZero() }

func (s *Session) clone() *Session {
	c := *s
	c.Draft = s.Draft.Clone()
	if s.Errors != nil {
		c.Errors = make(map[string]string, len(s.Errors))
		for k, v := range s.Errors {
			c.Errors[k] = v
		}
	}
	return &c
}

func (s *Session) equal(other *Session) bool {
	return reflect.DeepEqual(s, other)
}

// View returns a copy of the session safe to be shown: passwords are redacted.
func (s Session) View() Session {
	v := *s.clone()
	v.Draft = v.Draft.Redacted()
	return v
}

// Notice is the outcome of a single verification email send.
type Notice struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Submission statuses
const (
	StatusSubmitted = "submitted"
	StatusVerified  = "verified"
)

// Submission is a ledger entry recorded once a draft has been accepted by the auth service.
type Submission struct {
	ID          int64     `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	Role        Role      `db:"role" json:"role"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Status      string    `db:"status" json:"status"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"` // UTC
	VerifiedAt  null.Time `db:"verified_at" json:"verified_at"`   // UTC
}

type QueryFilter struct {
	Role   Role   `query:"role"`
	Email  string `query:"email"`
	Status string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Email = strings.ToLower(strings.TrimSpace(qf.Email))
	qf.Status = strings.TrimSpace(qf.Status)
}

// StudentRegistration is the auth service payload for a student account.
type StudentRegistration struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PhoneNumber    string `json:"phone_number"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	AcademicStream string `json:"academic_stream"`
	Wilaya         string `json:"wilaya"`
}

// ProfessorRegistration is the auth service payload for a teacher application. The CV travels alongside it.
type ProfessorRegistration struct {
	FirstName               string `json:"first_name"`
	LastName                string `json:"last_name"`
	PhoneNumber             string `json:"phone_number"`
	Email                   string `json:"email"`
	Password                string `json:"password"`
	Gender                  string `json:"gender"`
	DateOfBirth             string `json:"date_of_birth"` // RFC 3339
	HighSchoolExperience    bool   `json:"highSchool_experience"`
	HighSchoolExperienceNum int    `json:"highSchool_experience_num"`
	OffSchoolExperience     bool   `json:"offSchool_experience"`
	OnlineSchoolExperience  bool   `json:"onlineSchool_experience"`
}
