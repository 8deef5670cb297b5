package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core/registration"
)

type (
	// SessionResponse is the view of a wizard session: the draft never holds the passwords.
	SessionResponse struct {
		Session registration.Session `json:"session"`
		Steps   []string             `json:"steps,omitempty"`
	}

	StartResponse struct {
		Token string `json:"token"`
		SessionResponse
	}

	RoleRequest struct {
		Role registration.Role `json:"role"`
	}

	NoticeResponse struct {
		SessionResponse
		Notice registration.Notice `json:"notice"`
	}

	VerifyRequest struct {
		Token string `json:"token"`
	}

	VerifyResponse struct {
		SessionResponse
		Redirect string `json:"redirect"`
	}
)

type registrationApi struct {
	svc  registration.ServiceInterface
	auth *Auth
}

func registerRegistrationAPI(g *echo.Group, auth *Auth, svc registration.ServiceInterface) {
	api := registrationApi{svc: svc, auth: auth}

	rg := g.Group("/registrations", noStoreMiddleware)
	rg.POST("", api.start)

	// authed endpoints
	cg := rg.Group("/current", auth.Middleware(), sessionMiddleware)
	cg.GET("", api.retrieve)
	cg.DELETE("", api.discard)
	cg.POST("/role", api.selectRole)
	cg.PATCH("/draft", api.update)
	cg.PUT("/cv", api.uploadCV)
	cg.POST("/next", api.advance)
	cg.POST("/back", api.retreat)
	cg.POST("/restart", api.restart)
	cg.POST("/verification/resend", api.resendVerification)
	cg.POST("/verification/verify", api.verify)
	cg.DELETE("/verification/error", api.dismissVerificationError)
}

func (api *registrationApi) view(sess registration.Session) SessionResponse {
	res := SessionResponse{Session: sess.View()}
	if sess.Role != "" {
		res.Steps = api.svc.Steps(sess.Role)
	}
	return res
}

// respond renders the session, unless err.
func (api *registrationApi) respond(ctx echo.Context, sess registration.Session, err error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	return ctx.JSON(http.StatusOK, api.view(sess))
}

// Handlers

func (api *registrationApi) start(ctx echo.Context) error {
	sess, err := api.svc.Start(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	token, err := api.auth.GenerateToken(sess.ID)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, StartResponse{Token: token, SessionResponse: api.view(sess)})
}

func (api *registrationApi) retrieve(ctx echo.Context) error {
	id, _ := getSessionID(ctx)
	sess, err := api.svc.Get(ctx.Request().Context(), id)
	return api.respond(ctx, sess, err, "getting session")
}

func (api *registrationApi) discard(ctx echo.Context) error {
	id, _ := getSessionID(ctx)
	if err := api.svc.Discard(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "discarding session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *registrationApi) selectRole(ctx echo.Context) error {
	var data RoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleRequest")
	}
	id, _ := getSessionID(ctx)
	sess, err := api.svc.SelectRole(ctx.Request().Context(), id, data.Role)
	return api.respond(ctx, sess, err, "selecting role")
}

func (api *registrationApi) update(ctx echo.Context) error {
	var patch registration.DraftPatch
	if err := ctx.Bind(&patch); err != nil {
		return errors.Wrap(err, "binding to DraftPatch")
	}
	id, _ := getSessionID(ctx)
	sess, err := api.svc.Update(ctx.Request().Context(), id, patch)
	return api.respond(ctx, sess, err, "updating draft")
}

func (api *registrationApi) uploadCV(ctx echo.Context) error {
	fh, err := ctx.FormFile("cv")
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return errCVMissing
		}
		return errors.Wrap(err, "reading cv")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening cv")
	}
	defer func() { _ = f.Close() }()

	id, _ := getSessionID(ctx)
	sess, err := api.svc.UploadCV(ctx.Request().Context(), id, fh.Filename, fh.Header.Get(echo.HeaderContentType), f)
	return api.respond(ctx, sess, err, "uploading cv")
}

// advance answers 400 with the field errors when the active step is not valid.
func (api *registrationApi) advance(ctx echo.Context) error {
	id, _ := getSessionID(ctx)
	sess, err := api.svc.Advance(ctx.Request().Context(), id)
	return api.respond(ctx, sess, err, "advancing")
}

func (api *registrationApi) retreat(ctx echo.Context) error {
	id, _ := getSessionID(ctx)
	sess, err := api.svc.Retreat(ctx.Request().Context(), id)
	return api.respond(ctx, sess, err, "going back")
}

func (api *registrationApi) restart(ctx echo.Context) error {
	id, _ := getSessionID(ctx)
	sess, err := api.svc.Restart(ctx.Request().Context(), id)
	return api.respond(ctx, sess, err, "restarting")
}

func (api *registrationApi) resendVerification(ctx echo.Context) error {
	id, _ := getSessionID(ctx)
	sess, notice, err := api.svc.ResendVerification(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "resending verification email")
	}
	return ctx.JSON(http.StatusOK, NoticeResponse{SessionResponse: api.view(sess), Notice: notice})
}

func (api *registrationApi) verify(ctx echo.Context) error {
	var data VerifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyRequest")
	}
	id, _ := getSessionID(ctx)
	sess, redirect, err := api.svc.VerifyEmail(ctx.Request().Context(), id, data.Token)
	if err != nil {
		return errors.Wrap(err, "verifying email")
	}
	return ctx.JSON(http.StatusOK, VerifyResponse{SessionResponse: api.view(sess), Redirect: redirect})
}

func (api *registrationApi) dismissVerificationError(ctx echo.Context) error {
	id, _ := getSessionID(ctx)
	sess, err := api.svc.DismissVerificationError(ctx.Request().Context(), id)
	return api.respond(ctx, sess, err, "dismissing verification error")
}
