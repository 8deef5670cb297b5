package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/recovery"
	"github.com/sauvini/onboarding/core/registration"
	emailsvc "github.com/sauvini/onboarding/services/email"
	"github.com/sauvini/onboarding/services/metrics"
	"github.com/sauvini/onboarding/storage/database/inmem"
	"github.com/sauvini/onboarding/storage/files"
	"github.com/sauvini/onboarding/storage/session"
	sessinmem "github.com/sauvini/onboarding/storage/session/inmem"
)

const validToken = "98595fe6-e349-4153-ae4f-b1653cc90661"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// fakeAuth is the auth service.
type fakeAuth struct {
	mu          sync.Mutex
	students    []registration.StudentRegistration
	professors  []registration.ProfessorRegistration
	sends       []string
	resets      map[string]string // email: password
	registerErr error
}

func (a *fakeAuth) RegisterStudent(_ context.Context, reg registration.StudentRegistration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registerErr != nil {
		return a.registerErr
	}
	a.students = append(a.students, reg)
	return nil
}

func (a *fakeAuth) RegisterProfessor(_ context.Context, reg registration.ProfessorRegistration, cv io.Reader, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := io.Copy(io.Discard, cv); err != nil {
		return err
	}
	a.professors = append(a.professors, reg)
	return nil
}

func (a *fakeAuth) SendStudentVerificationEmail(_ context.Context, email string) (registration.Notice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends = append(a.sends, email)
	return registration.Notice{Success: true, Message: "Verification email sent"}, nil
}

func (a *fakeAuth) VerifyStudentEmail(_ context.Context, token string) (registration.Notice, error) {
	if token != validToken {
		return registration.Notice{Message: "Invalid or expired token"}, nil
	}
	return registration.Notice{Success: true, Message: "Email verified"}, nil
}

func (a *fakeAuth) RequestPasswordReset(context.Context, string) error { return nil }

func (a *fakeAuth) ResetPassword(_ context.Context, email, token, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if token != validToken {
		return core.NewRequestError("Invalid reset token", nil)
	}
	if a.resets == nil {
		a.resets = make(map[string]string)
	}
	a.resets[email] = password
	return nil
}

type testApp struct {
	server *Server
	auth   *fakeAuth
	ledger registration.SubmissionRepository
	mailer *emailsvc.ConsoleService
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	logger := nopLogger{}
	core.ParseEmailTemplates(conf.WorkDir, true, logger)

	fileStore, err := files.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	app := &testApp{
		auth:   new(fakeAuth),
		ledger: inmemdb.NewSubmissionRepository(),
		mailer: emailsvc.NewConsoleServiceMock(conf, logger),
	}
	store := session.NewStore(sessinmem.NewKV(), session.NewSealedCodec(conf.SecretKey), conf.Session.TTL)
	validate := registration.NewValidator(core.NewTranslator())

	regSvc := registration.NewService(registration.Deps{
		Repo:    store,
		Ledger:  app.ledger,
		Files:   fileStore,
		Auth:    app.auth,
		Mailer:  app.mailer,
		Locker:  sessinmem.NewLocker(),
		Metrics: metrics.NewRecorder(),
		Logger:  logger,
		Routes: registration.LoginRoutes{
			registration.RoleStudent: conf.Routes.StudentLogin,
			registration.RoleTeacher: conf.Routes.TeacherLogin,
		},
		Validate: validate,
	})
	resetSvc := recovery.NewService(store, app.auth, validate, logger)

	app.server = NewServer(conf, logger, regSvc, resetSvc)
	return app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func newUploadRequest(t *testing.T, path, token, field, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

// do serves the request and decodes the response body into v (when not nil).
func (app *testApp) do(t *testing.T, req *http.Request, rec *httptest.ResponseRecorder, wantCode int, v interface{}) {
	t.Helper()
	app.server.ServeHTTP(rec, req)
	require.Equal(t, wantCode, rec.Code, "body: %s", rec.Body.String())
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
}

// start opens a wizard session and returns its token.
func (app *testApp) start(t *testing.T) string {
	t.Helper()
	var res StartResponse
	req, rec := newRequest(http.MethodPost, "/v1/registrations")
	app.do(t, req, rec, http.StatusCreated, &res)
	require.NotEmpty(t, res.Token)
	return res.Token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
