package registration

import (
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/sauvini/onboarding/core"
)

var (
	phoneTag   = "phone"
	phoneText  = "invalid phone number"
	phoneRegex = regexp.MustCompile(`^\+?[\d\s\-()]{10,15}$`)

	emailShapeTag   = "emailshape"
	emailShapeText  = "invalid email address"
	emailShapeRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// password policy
	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character and 1 digit"

	// answered is set on tri-state flags: only a nil (unanswered) value fails it.
	answeredTag  = "answered"
	answeredText = "this question is unanswered"

	maxExperienceYears = 50
)

// messages holds the user facing message of every {field: {tag: message}} rule.
// Rules without an entry fall back to the translator.
var messages = map[string]map[string]string{
	"first_name": {
		"required": "First name is required",
		"min":      "First name must be at least 2 characters",
		"max":      "First name must be at most 100 characters",
	},
	"last_name": {
		"required": "Last name is required",
		"max":      "Last name must be at most 100 characters",
	},
	"phone_number": {
		"required": "Phone number is required",
		phoneTag:   "Please enter a valid phone number",
	},
	"wilaya": {
		"required": "Wilaya is required",
	},
	"email": {
		"required":    "Email is required",
		emailShapeTag: "Please enter a valid email address",
	},
	"password": {
		"required":       "Password is required",
		"min":            "Password must be at least 8 characters",
		pwdComplexityTag: "Password must contain at least one uppercase letter, one lowercase letter, and one number",
	},
	"confirm_password": {
		"required": "Please confirm your password",
		"eqfield":  "Passwords do not match",
	},
	"academic_stream": {
		"required": "Academic stream is required",
	},
	"date_of_birth": {
		"required": "Date of birth is required",
	},
	"gender": {
		"required": "Gender is required",
	},
	"highSchool_experience": {
		answeredTag: "Please answer this question",
	},
	"offSchool_experience": {
		answeredTag: "Please answer this question",
	},
	"onlineSchool_experience": {
		answeredTag: "Please answer this question",
	},
	"highSchool_experience_num": {
		"required": "Years of experience is required",
		"min":      "Years of experience cannot be negative",
		"max":      "Years of experience cannot exceed 50 years",
	},
	"cv": {
		"required": "CV is required",
	},
}

type (
	studentIdentity struct {
		FirstName   string `json:"first_name" validate:"required,min=2,max=100"`
		LastName    string `json:"last_name" validate:"required,max=100"`
		PhoneNumber string `json:"phone_number" validate:"required,phone"`
		Wilaya      string `json:"wilaya" validate:"required"`
	}

	studentAccount struct {
		Email           string `json:"email" validate:"required,emailshape"`
		Password        string `json:"password" validate:"required,min=8,pwdcplx"`
		ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
		AcademicStream  string `json:"academic_stream" validate:"required"`
	}

	teacherPersonal struct {
		FirstName   string `json:"first_name" validate:"required,min=2,max=100"`
		LastName    string `json:"last_name" validate:"required,max=100"`
		Gender      string `json:"gender" validate:"required"`
		DateOfBirth string `json:"date_of_birth" validate:"required"`
		PhoneNumber string `json:"phone_number" validate:"required,phone"`
	}

	teacherExperience struct {
		HighSchoolExperience    *bool    `json:"highSchool_experience" validate:"answered"`
		HighSchoolExperienceNum *int     `json:"highSchool_experience_num"` // see experienceStructValidation
		OffSchoolExperience     *bool    `json:"offSchool_experience" validate:"answered"`
		OnlineSchoolExperience  *bool    `json:"onlineSchool_experience" validate:"answered"`
		CV                      *FileRef `json:"cv" validate:"required"`
	}

	teacherAccount struct {
		Email           string `json:"email" validate:"required,emailshape"`
		Password        string `json:"password" validate:"required,min=8,pwdcplx"`
		ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	}

	// PasswordForm validates a new password and its confirmation with the registration password rules.
	PasswordForm struct {
		Password        string `json:"password" validate:"required,min=8,pwdcplx"`
		ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	}
)

// Validator runs the per-step validation rules against a draft.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator returns a Validator with the registration rules registered.
func NewValidator(translator ut.Translator) *Validator {
	validate := validator.New()
	core.InitValidators(validate, translator)

	_ = validate.RegisterValidation(phoneTag, phoneValidation)
	core.RegisterCustomTranslation(validate, translator, phoneTag, phoneText)

	_ = validate.RegisterValidation(emailShapeTag, emailShapeValidation)
	core.RegisterCustomTranslation(validate, translator, emailShapeTag, emailShapeText)

	_ = validate.RegisterValidation(pwdComplexityTag, pwdComplexityValidation)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)

	_ = validate.RegisterValidation(answeredTag, answeredValidation)
	core.RegisterCustomTranslation(validate, translator, answeredTag, answeredText)

	validate.RegisterStructValidation(experienceStructValidation, teacherExperience{})

	return &Validator{validate: validate, translator: translator}
}

// Struct validates `s` and returns the {field: message} mapping of its errors, or nil when valid.
func (v *Validator) Struct(s interface{}) map[string]string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// only happens on programming errors (eg. a non-struct value)
		return map[string]string{"": err.Error()}
	}
	flds := make(map[string]string, len(vErrs))
	for _, fe := range vErrs {
		if _, seen := flds[fe.Field()]; seen {
			continue
		}
		flds[fe.Field()] = v.message(fe)
	}
	return flds
}

func (v *Validator) message(fe validator.FieldError) string {
	if byTag, ok := messages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}
	return fe.Translate(v.translator)
}

// Step Validators
// each one validates a trimmed copy of the draft: the draft itself is never mutated.
// Passwords are never trimmed.

func (v *Validator) StudentIdentity(d Draft) map[string]string {
	return v.Struct(studentIdentity{
		FirstName:   core.CleanString(d.FirstName),
		LastName:    core.CleanString(d.LastName),
		PhoneNumber: core.CleanString(d.PhoneNumber),
		Wilaya:      core.CleanString(d.Wilaya),
	})
}

func (v *Validator) StudentAccount(d Draft) map[string]string {
	return v.Struct(studentAccount{
		Email:           core.CleanString(d.Email),
		Password:        d.Password,
		ConfirmPassword: d.ConfirmPassword,
		AcademicStream:  core.CleanString(d.AcademicStream),
	})
}

func (v *Validator) TeacherPersonal(d Draft) map[string]string {
	return v.Struct(teacherPersonal{
		FirstName:   core.CleanString(d.FirstName),
		LastName:    core.CleanString(d.LastName),
		Gender:      core.CleanString(d.Gender),
		DateOfBirth: core.CleanString(d.DateOfBirth),
		PhoneNumber: core.CleanString(d.PhoneNumber),
	})
}

func (v *Validator) TeacherExperience(d Draft) map[string]string {
	c := d.Clone()
	return v.Struct(teacherExperience{
		HighSchoolExperience:    c.HighSchoolExperience,
		HighSchoolExperienceNum: c.HighSchoolExperienceNum,
		OffSchoolExperience:     c.OffSchoolExperience,
		OnlineSchoolExperience:  c.OnlineSchoolExperience,
		CV:                      c.CV,
	})
}

func (v *Validator) TeacherAccount(d Draft) map[string]string {
	return v.Struct(teacherAccount{
		Email:           core.CleanString(d.Email),
		Password:        d.Password,
		ConfirmPassword: d.ConfirmPassword,
	})
}

// Password validates a new password against the registration password policy.
func (v *Validator) Password(pwd, confirm string) map[string]string {
	return v.Struct(PasswordForm{Password: pwd, ConfirmPassword: confirm})
}

// Custom Validators

func phoneValidation(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(strings.TrimSpace(fl.Field().String()))
}

func emailShapeValidation(fl validator.FieldLevel) bool {
	return emailShapeRegex.MatchString(fl.Field().String())
}

// pwdComplexityValidation requires at least 1 uppercase, 1 lowercase and 1 digit, all ASCII.
func pwdComplexityValidation(fl validator.FieldLevel) bool {
	var hasUpper, hasLower, hasDigit bool
	for _, r := range fl.Field().String() {
		switch {
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case 'a' <= r && r <= 'z':
			hasLower = true
		case '0' <= r && r <= '9':
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

// answeredValidation is only reached by non-nil values: any answer, "No" included, is valid.
func answeredValidation(validator.FieldLevel) bool {
	return true
}

// experienceStructValidation requires 0 <= years <= 50 whenever high school experience is claimed.
func experienceStructValidation(sl validator.StructLevel) {
	exp, ok := sl.Current().Interface().(teacherExperience)
	if !ok || exp.HighSchoolExperience == nil || !*exp.HighSchoolExperience {
		return
	}
	years := exp.HighSchoolExperienceNum
	switch {
	case years == nil:
		sl.ReportError(years, "highSchool_experience_num", "HighSchoolExperienceNum", "required", "")
	case *years < 0:
		sl.ReportError(*years, "highSchool_experience_num", "HighSchoolExperienceNum", "min", "0")
	case *years > maxExperienceYears:
		sl.ReportError(*years, "highSchool_experience_num", "HighSchoolExperienceNum", "max", "50")
	}
}
