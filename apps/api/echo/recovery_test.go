package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoveryAPI(t *testing.T) {
	app := setup(t)

	var fieldErrs map[string]string
	req, rec := newRequest(http.MethodPost, "/v1/password-reset", []byte(`{"email": "not-an-email"}`))
	app.do(t, req, rec, http.StatusBadRequest, &fieldErrs)
	assert.Contains(t, fieldErrs, "email")

	var started PasswordResetResponse
	req, rec = newRequest(http.MethodPost, "/v1/password-reset", []byte(`{"email": " Amine@Example.com "}`))
	app.do(t, req, rec, http.StatusCreated, &started)
	assert.NotEmpty(t, started.ID)
	base := "/v1/password-reset/" + started.ID

	req, rec = newRequest(http.MethodPost, base+"/token", []byte(`{"token": "  "}`))
	app.do(t, req, rec, http.StatusBadRequest, &fieldErrs)
	assert.Equal(t, map[string]string{"token": "Please enter the reset token"}, fieldErrs)

	req, rec = newRequest(http.MethodPost, base+"/token", []byte(`{"token": "`+validToken+`"}`))
	app.do(t, req, rec, http.StatusOK, nil)

	req, rec = newRequest(http.MethodPost, base+"/confirm", []byte(`{"password": "NewPass99", "confirm_password": "NewPass98"}`))
	app.do(t, req, rec, http.StatusBadRequest, &fieldErrs)
	assert.Equal(t, map[string]string{"confirm_password": "Passwords do not match"}, fieldErrs)

	tests := []httpTest{
		{
			name:     "confirmed",
			method:   http.MethodPost,
			path:     base + "/confirm",
			body:     []byte(`{"password": "NewPass99", "confirm_password": "NewPass99"}`),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name:     "session deleted once confirmed",
			method:   http.MethodPost,
			path:     base + "/confirm",
			body:     []byte(`{"password": "NewPass99", "confirm_password": "NewPass99"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "your password reset session has expired, please start again"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.Equal(t, map[string]string{"amine@example.com": "NewPass99"}, app.auth.resets)
}
