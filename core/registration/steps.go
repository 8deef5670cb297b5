package registration

// FieldValidator maps a draft to the {field: message} errors of a step. A nil result means valid.
type FieldValidator func(d Draft) map[string]string

// Step is one screen of a role's wizard.
type Step struct {
	Name     string
	Fields   []string       // draft fields the step may write
	Validate FieldValidator // nil: advancing is unconditional
	Submits  bool           // advancing dispatches the draft to the auth service
	Verifies bool           // email verification step
	Terminal bool
}

// Writable reports whether `field` belongs to the step.
func (s Step) Writable(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

type stepKey struct {
	role  Role
	index int
}

// StepRegistry holds the ordered steps of every role, keyed by (role, index).
// Index 0 is the role selection step, shared by all roles.
type StepRegistry struct {
	steps map[stepKey]Step
	count map[Role]int
}

var roleStep = Step{Name: "role"}

// NewStepRegistry returns the registry of the student and teacher wizards.
func NewStepRegistry(v *Validator) *StepRegistry {
	reg := &StepRegistry{steps: make(map[stepKey]Step), count: make(map[Role]int)}

	reg.register(RoleStudent,
		Step{
			Name:     "identity",
			Fields:   []string{"first_name", "last_name", "phone_number", "wilaya"},
			Validate: v.StudentIdentity,
		},
		Step{
			Name:     "account",
			Fields:   []string{"email", "password", "confirm_password", "academic_stream"},
			Validate: v.StudentAccount,
			Submits:  true,
		},
		Step{Name: "verify_email", Verifies: true},
		Step{Name: "verified", Terminal: true},
	)

	reg.register(RoleTeacher,
		Step{
			Name:     "personal",
			Fields:   []string{"first_name", "last_name", "gender", "date_of_birth", "phone_number"},
			Validate: v.TeacherPersonal,
		},
		Step{
			Name: "experience",
			Fields: []string{
				"highSchool_experience", "highSchool_experience_num",
				"offSchool_experience", "onlineSchool_experience", "cv",
			},
			Validate: v.TeacherExperience,
		},
		Step{
			Name:     "account",
			Fields:   []string{"email", "password", "confirm_password"},
			Validate: v.TeacherAccount,
			Submits:  true,
		},
		Step{Name: "submitted", Terminal: true},
	)

	return reg
}

func (reg *StepRegistry) register(role Role, steps ...Step) {
	reg.steps[stepKey{role, 0}] = roleStep
	for i, step := range steps {
		reg.steps[stepKey{role, i + 1}] = step
	}
	reg.count[role] = len(steps) + 1
}

// Step returns the step at `index` of the role's wizard.
// Step 0 is returned for any role, including none.
func (reg *StepRegistry) Step(role Role, index int) (Step, bool) {
	if index == 0 {
		return roleStep, true
	}
	step, ok := reg.steps[stepKey{role, index}]
	return step, ok
}

// Len returns the number of steps of the role's wizard, role selection included.
func (reg *StepRegistry) Len(role Role) int {
	return reg.count[role]
}

// Names returns the step names of the role's wizard, in order.
func (reg *StepRegistry) Names(role Role) []string {
	names := make([]string, 0, reg.Len(role))
	for i := 0; i < reg.Len(role); i++ {
		step, _ := reg.Step(role, i)
		names = append(names, step.Name)
	}
	if len(names) == 0 {
		names = append(names, roleStep.Name)
	}
	return names
}
