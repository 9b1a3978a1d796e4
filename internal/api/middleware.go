package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/controller"
	"github.com/filmgrid/auth-service/internal/service"
)

const bearerPrefix = "Bearer "

// BearerAuth validates the Authorization header and stores the caller's user
// and session ids in the echo context. With required=false an anonymous
// request passes through untouched; a present-but-invalid token is rejected
// either way.
func BearerAuth(tokens *service.TokenService, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if required {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
				}
				return next(c)
			}
			if !strings.HasPrefix(header, bearerPrefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "malformed authorization header")
			}

			claims, err := tokens.ValidateAccessToken(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			userID, err := claims.SubjectID()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}

			c.Set(controller.UserIDContextKey, userID)
			c.Set(controller.SessionIDContextKey, claims.SessionID)
			return next(c)
		}
	}
}

func GetLoggerMiddlewareConfig(a *API) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", c.Request().Method,
				"uri", v.URI,
				"status", v.Status,
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				a.log.Errorw("Request", fields...)
			} else {
				a.log.Infow("Request", fields...)
			}
			return nil
		},
	}
}
