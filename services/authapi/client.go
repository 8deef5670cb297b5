// Package authapi is the client of the external auth service.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/recovery"
	"github.com/sauvini/onboarding/core/registration"
)

var (
	registerStudentPath   = "/auth/register/student"
	registerProfessorPath = "/auth/register/professor"
	sendVerificationPath  = "/auth/send-verification-email"
	verifyEmailPath       = "/auth/verify-email"
	forgotPasswordPath    = "/auth/forgot-password"
	resetPasswordPath     = "/auth/reset-password"
)

// Error is a failed call to the auth service.
type Error struct {
	StatusCode int
	Message    string // server message, if any
	Path       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth api %s: status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("auth api %s: status %d: %s", e.Path, e.StatusCode, e.Message)
}

// RemoteMessage returns the message sent by the server.
func (e *Error) RemoteMessage() string { return e.Message }

// reply is the body of every auth service response.
type reply struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (r reply) message() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

type Client struct {
	baseURL string
	rest    *rest.Client
	logger  core.Logger
}

var (
	_ registration.AuthClient = (*Client)(nil)
	_ recovery.AuthClient     = (*Client)(nil)
)

func NewClient(baseURL string, timeout time.Duration, logger core.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		logger:  logger,
	}
}

func (c *Client) RegisterStudent(ctx context.Context, reg registration.StudentRegistration) error {
	_, err := c.postJSON(ctx, registerStudentPath, reg)
	return err
}

// RegisterProfessor posts a multipart form: the JSON payload as the "data" field, and the CV as the "cv" file.
func (c *Client) RegisterProfessor(ctx context.Context, reg registration.ProfessorRegistration, cv io.Reader, cvName string) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return errors.Wrap(err, "encoding registration")
	}

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)

	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="data"`},
		"Content-Type":        {"application/json"},
	})
	if err != nil {
		return errors.Wrap(err, "creating data part")
	}
	if _, err = part.Write(data); err != nil {
		return errors.Wrap(err, "writing data part")
	}

	part, err = w.CreateFormFile("cv", cvName)
	if err != nil {
		return errors.Wrap(err, "creating cv part")
	}
	if _, err = io.Copy(part, cv); err != nil {
		return errors.Wrap(err, "writing cv part")
	}
	if err = w.Close(); err != nil {
		return errors.Wrap(err, "closing multipart writer")
	}

	_, err = c.send(ctx, registerProfessorPath, w.FormDataContentType(), body.Bytes())
	return err
}

func (c *Client) SendStudentVerificationEmail(ctx context.Context, email string) (registration.Notice, error) {
	return c.notice(ctx, sendVerificationPath, map[string]string{"email": email})
}

func (c *Client) VerifyStudentEmail(ctx context.Context, token string) (registration.Notice, error) {
	return c.notice(ctx, verifyEmailPath, map[string]string{"token": token})
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := c.postJSON(ctx, forgotPasswordPath, map[string]string{"email": email})
	return err
}

func (c *Client) ResetPassword(ctx context.Context, email, token, password string) error {
	_, err := c.postJSON(ctx, resetPasswordPath, map[string]string{
		"email":    email,
		"token":    token,
		"password": password,
	})
	return err
}

// notice maps a reply to a Notice: a missing "success" means success.
func (c *Client) notice(ctx context.Context, path string, payload interface{}) (registration.Notice, error) {
	rep, err := c.postJSON(ctx, path, payload)
	if err != nil {
		return registration.Notice{}, err
	}
	return registration.Notice{Success: rep.Success == nil || *rep.Success, Message: rep.message()}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (reply, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return reply{}, errors.Wrap(err, "encoding payload")
	}
	return c.send(ctx, path, "application/json", data)
}

func (c *Client) send(ctx context.Context, path, contentType string, body []byte) (reply, error) {
	req := rest.Request{
		Method:  rest.Post,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{
			"Content-Type": contentType,
			"Accept":       "application/json",
		},
		Body: body,
	}

	start := time.Now()
	res, err := c.rest.SendWithContext(ctx, req)
	if err != nil {
		return reply{}, errors.Wrapf(err, "calling auth api %s", path)
	}
	c.logger.Debug(fmt.Sprintf("auth api %s: %d (%s)", path, res.StatusCode, time.Since(start)))

	var rep reply
	if strings.TrimSpace(res.Body) != "" {
		// a non JSON body (eg. a proxy error page) carries no message
		_ = json.Unmarshal([]byte(res.Body), &rep)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return rep, &Error{StatusCode: res.StatusCode, Message: rep.message(), Path: path}
	}
	return rep, nil
}
