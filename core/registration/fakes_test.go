package registration

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
)

type memRepo struct {
	mu          sync.Mutex
	sessions    map[string]Session
	updates     int
	failUpdates int // number of the next updates to refuse
}

func newMemRepo() *memRepo { return &memRepo{sessions: make(map[string]Session)} }

func (r *memRepo) CreateSession(_ context.Context, sess Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = *sess.clone()
	return nil
}

func (r *memRepo) GetSession(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess.clone(), nil
}

func (r *memRepo) UpdateSession(_ context.Context, sess Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.ID]; !ok {
		return ErrSessionNotFound
	}
	if r.failUpdates > 0 {
		r.failUpdates--
		return errors.New("store unavailable")
	}
	r.updates++
	r.sessions[sess.ID] = *sess.clone()
	return nil
}

func (r *memRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	subs []Submission
}

func (l *memLedger) CreateSubmission(_ context.Context, sub Submission) (Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub.ID = int64(len(l.subs) + 1)
	l.subs = append(l.subs, sub)
	return sub, nil
}

func (l *memLedger) MarkVerified(_ context.Context, sessionID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.subs {
		if l.subs[i].SessionID == sessionID {
			l.subs[i].Status = StatusVerified
			l.subs[i].VerifiedAt.SetValid(at)
			return nil
		}
	}
	return ErrSubmissionNotFound
}

func (l *memLedger) QuerySubmissions(_ context.Context, filter QueryFilter, _ ...core.DBOrdering) ([]Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var subs []Submission
	for _, sub := range l.subs {
		if filter.Role != "" && sub.Role != filter.Role {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
}

func newMemFiles() *memFiles { return &memFiles{files: make(map[string][]byte)} }

func (f *memFiles) Save(_ context.Context, name, contentType string, r io.Reader) (FileRef, error) {
	content, err := ioutil.ReadAll(r)
	if err != nil {
		return FileRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := FileRef{ID: uuid.New().String(), Name: name, ContentType: contentType, Size: int64(len(content))}
	f.files[ref.ID] = content
	return ref, nil
}

func (f *memFiles) Open(_ context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	return ioutil.NopCloser(bytes.NewReader(content)), nil
}

func (f *memFiles) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return ErrFileNotFound
	}
	delete(f.files, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type remoteErr struct {
	msg string
}

func (e remoteErr) Error() string         { return "auth api: " + e.msg }
func (e remoteErr) RemoteMessage() string { return e.msg }

// fakeAuth records the calls made to the auth service.
type fakeAuth struct {
	mu sync.Mutex

	students   []StudentRegistration
	professors []ProfessorRegistration
	cvs        []string // "name:content"
	sends      []string
	tokens     []string

	registerErr error
	sendNotices []Notice // consumed in order; then success
	sendErr     error
	verifyToken string // the valid token
	verifyMsg   string // server message on failure
}

func (a *fakeAuth) RegisterStudent(_ context.Context, reg StudentRegistration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registerErr != nil {
		return a.registerErr
	}
	a.students = append(a.students, reg)
	return nil
}

func (a *fakeAuth) RegisterProfessor(_ context.Context, reg ProfessorRegistration, cv io.Reader, cvName string) error {
	content, err := ioutil.ReadAll(cv)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registerErr != nil {
		return a.registerErr
	}
	a.professors = append(a.professors, reg)
	a.cvs = append(a.cvs, cvName+":"+string(content))
	return nil
}

func (a *fakeAuth) SendStudentVerificationEmail(_ context.Context, email string) (Notice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends = append(a.sends, email)
	if a.sendErr != nil {
		return Notice{}, a.sendErr
	}
	if len(a.sendNotices) > 0 {
		n := a.sendNotices[0]
		a.sendNotices = a.sendNotices[1:]
		return n, nil
	}
	return Notice{Success: true, Message: "Verification email sent"}, nil
}

func (a *fakeAuth) VerifyStudentEmail(_ context.Context, token string) (Notice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = append(a.tokens, token)
	if token == a.verifyToken {
		return Notice{Success: true, Message: "Email verified"}, nil
	}
	if a.verifyMsg == "" {
		return Notice{}, errors.New("connection refused")
	}
	return Notice{}, remoteErr{msg: a.verifyMsg}
}

func (a *fakeAuth) sendCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sends)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []core.EmailMessage
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.sent = append(m.sent, *msg)
	}
}

type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *keyLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	mu, ok := l.locks[key]
	if !ok {
		mu = new(sync.Mutex)
		l.locks[key] = mu
	}
	l.mu.Unlock()
	mu.Lock()
	return mu.Unlock, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type testEnv struct {
	svc    *Service
	repo   *memRepo
	ledger *memLedger
	files  *memFiles
	auth   *fakeAuth
	mailer *fakeMailer
}

var testRoutes = LoginRoutes{RoleStudent: "/auth/login/student", RoleTeacher: "/auth/login/professor"}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:   newMemRepo(),
		ledger: new(memLedger),
		files:  newMemFiles(),
		auth:   &fakeAuth{verifyToken: "98595fe6-e349-4153-ae4f-b1653cc90661"},
		mailer: new(fakeMailer),
	}
	env.svc = NewService(Deps{
		Repo:     env.repo,
		Ledger:   env.ledger,
		Files:    env.files,
		Auth:     env.auth,
		Mailer:   env.mailer,
		Locker:   new(keyLocker),
		Logger:   nopLogger{},
		Routes:   testRoutes,
		Validate: testValidator,
	})
	return env
}

var testValidator = NewValidator(core.NewTranslator())

func newTestWizard(auth AuthClient) (*Wizard, *Dispatcher) {
	dispatcher := NewDispatcher(auth, newMemFiles(), new(memLedger), new(fakeMailer), testRoutes, nopLogger{})
	return NewWizard(NewStepRegistry(testValidator), dispatcher), dispatcher
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }

func studentIdentityPatch() DraftPatch {
	return DraftPatch{
		FirstName:   strPtr("Al"),
		LastName:    strPtr("B"),
		PhoneNumber: strPtr("0551234567"),
		Wilaya:      strPtr("Alger"),
	}
}

func studentAccountPatch() DraftPatch {
	return DraftPatch{
		Email:           strPtr("amine@example.com"),
		Password:        strPtr("Secret123"),
		ConfirmPassword: strPtr("Secret123"),
		AcademicStream:  strPtr("sciences"),
	}
}

func teacherPersonalPatch() DraftPatch {
	return DraftPatch{
		FirstName:   strPtr("Samira"),
		LastName:    strPtr("Haddad"),
		Gender:      strPtr("female"),
		DateOfBirth: strPtr("1990-05-17"),
		PhoneNumber: strPtr("+213 555123456"),
	}
}

func teacherExperiencePatch() DraftPatch {
	return DraftPatch{
		HighSchoolExperience:    boolPtr(true),
		HighSchoolExperienceNum: intPtr(7),
		OffSchoolExperience:     boolPtr(false),
		OnlineSchoolExperience:  boolPtr(false),
	}
}

func teacherAccountPatch() DraftPatch {
	return DraftPatch{
		Email:           strPtr("Samira@Example.com "),
		Password:        strPtr("Teach1234"),
		ConfirmPassword: strPtr("Teach1234"),
	}
}
