package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/service"
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService *service.AuthService
}

func NewController(logger *zap.SugaredLogger, authService *service.AuthService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
	}
}

func requestMeta(ctx echo.Context) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
	}
}

// (GET /api/ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /api/auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	outcome, err := c.authService.Login(ctx.Request().Context(), service.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		Meta:       requestMeta(ctx),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.loginResponse(outcome))
}

// (POST /api/auth/mfa/verify).
func (c *Controller) VerifyMfa(ctx echo.Context) error {
	var req models.MfaVerifyRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	outcome, err := c.authService.VerifyMfaAndLogin(ctx.Request().Context(), req.MfaTicket, req.Code, req.DeviceID, requestMeta(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.loginResponse(outcome))
}

// (POST /api/auth/sso/google).
func (c *Controller) SSOLogin(ctx echo.Context) error {
	var req models.SSOLoginRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	outcome, err := c.authService.LoginWithProvider(ctx.Request().Context(), service.SSOInput{
		Provider:    req.Provider,
		ProviderSub: req.ProviderSub,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		DeviceID:    req.DeviceID,
		Meta:        requestMeta(ctx),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.loginResponse(outcome))
}

// (POST /api/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.TokenRefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	pair, err := c.authService.Rotate(ctx.Request().Context(), req.RefreshToken, requestMeta(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pair)
}

// (POST /api/auth/logout). Logout by refresh token needs no bearer; session
// or all-devices logout requires the authenticated user from the middleware.
func (c *Controller) Logout(ctx echo.Context) error {
	var req models.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	meta := requestMeta(ctx)
	reqCtx := ctx.Request().Context()

	switch {
	case req.RefreshToken != "":
		if err := c.authService.LogoutByToken(reqCtx, req.RefreshToken, meta); err != nil {
			return err
		}
	case req.SessionID != "" || req.All:
		userID, ok := ctx.Get(UserIDContextKey).(int64)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if req.All {
			if _, err := c.authService.LogoutEverywhere(reqCtx, userID, meta); err != nil {
				return err
			}
		} else if err := c.authService.LogoutSession(reqCtx, userID, req.SessionID, meta); err != nil {
			return err
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to log out")
	}

	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// (POST /api/auth/password/change/init).
func (c *Controller) InitPasswordChange(ctx echo.Context) error {
	var req models.PasswordChangeInitRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	userID, ok := ctx.Get(UserIDContextKey).(int64)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ticket, err := c.authService.InitPasswordChange(ctx.Request().Context(), userID, req.CurrentPassword, requestMeta(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.PasswordChangeInitResponse{ChangeTicket: ticket})
}

// (POST /api/auth/password/change).
func (c *Controller) CompletePasswordChange(ctx echo.Context) error {
	var req models.PasswordChangeRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.authService.CompletePasswordChange(ctx.Request().Context(), req.ChangeTicket, req.NewPassword, requestMeta(ctx)); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// (POST /api/auth/password/reset/init). The ticket is handed to the email
// collaborator out of band; the response stays empty either way so the
// endpoint cannot be used to enumerate accounts.
func (c *Controller) InitPasswordReset(ctx echo.Context) error {
	var req models.PasswordResetInitRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := c.authService.InitPasswordReset(ctx.Request().Context(), req.Email, requestMeta(ctx)); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.PasswordResetInitResponse{})
}

// (POST /api/auth/password/reset).
func (c *Controller) CompletePasswordReset(ctx echo.Context) error {
	var req models.PasswordResetRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.authService.CompletePasswordReset(ctx.Request().Context(), req.ResetTicket, req.NewPassword, requestMeta(ctx)); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Controller) loginResponse(outcome *service.LoginOutcome) models.LoginResponse {
	for _, w := range outcome.Warnings {
		c.zapLogger.Warnw("login completed with warning", "warning", w)
	}
	if outcome.RequiresMfa {
		return models.LoginResponse{RequiresMfa: true, MfaTicket: outcome.MfaTicket}
	}
	return models.LoginResponse{
		AccessToken:  outcome.Bundle.AccessToken,
		RefreshToken: outcome.Bundle.RefreshToken,
		SessionID:    outcome.Bundle.SessionID,
		DeviceID:     outcome.Bundle.DeviceID,
	}
}
