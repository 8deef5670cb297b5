package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core/recovery"
)

type (
	PasswordResetRequest struct {
		Email string `json:"email"`
	}

	PasswordResetResponse struct {
		ID string `json:"id"`
	}

	ResetTokenRequest struct {
		Token string `json:"token"`
	}

	ConfirmPasswordResetRequest struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

type recoveryApi struct {
	svc *recovery.Service
}

func registerRecoveryAPI(g *echo.Group, svc *recovery.Service) {
	api := recoveryApi{svc: svc}

	// TODO: rate limit `/password-reset` once a shared limiter store exists
	rg := g.Group("/password-reset", noStoreMiddleware)
	rg.POST("", api.start)
	rg.POST("/:id/token", api.setToken)
	rg.POST("/:id/confirm", api.confirm)
}

func (api *recoveryApi) start(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	sess, err := api.svc.Start(ctx.Request().Context(), data.Email)
	if err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusCreated, PasswordResetResponse{ID: sess.ID})
}

func (api *recoveryApi) setToken(ctx echo.Context) error {
	var data ResetTokenRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetTokenRequest")
	}
	if err := api.svc.SetToken(ctx.Request().Context(), ctx.Param("id"), data.Token); err != nil {
		return errors.Wrap(err, "setting reset token")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Reset token saved."})
}

func (api *recoveryApi) confirm(ctx echo.Context) error {
	var data ConfirmPasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmPasswordResetRequest")
	}
	if err := api.svc.Complete(ctx.Request().Context(), ctx.Param("id"), data.Password, data.ConfirmPassword); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}
