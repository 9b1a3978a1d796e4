package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/service"
	"github.com/filmgrid/auth-service/internal/util"
)

// ErrorHandler maps the service error taxonomy onto HTTP statuses. Anything
// unrecognized becomes a generic 500 with no internals leaked to the caller.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if status, ok := statusForServiceError(err); ok {
			if jsonErr := c.JSON(status, map[string]string{"reason": err.Error()}); jsonErr != nil {
				log.Errorw("failed to write json response", "error", jsonErr)
			}
			return
		}

		var respErr util.ResponseError
		if errors.As(err, &respErr) {
			c.JSON(respErr.Status, map[string]string{"reason": respErr.Msg})
			return
		}

		he, ok := err.(*echo.HTTPError)
		if ok {
			if he.Code == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			msg, isString := he.Message.(string)
			if !isString {
				msg = http.StatusText(he.Code)
			}
			if jsonErr := c.JSON(he.Code, map[string]string{"reason": msg}); jsonErr != nil {
				log.Errorw("failed to write json response", "error", jsonErr)
			}
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		c.JSON(http.StatusInternalServerError, map[string]string{"reason": "internal server error"})
	}
}

func statusForServiceError(err error) (int, bool) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, true
	case errors.Is(err, service.ErrTokenInvalid):
		return http.StatusUnauthorized, true
	case errors.Is(err, service.ErrAccountLocked), errors.Is(err, service.ErrAccountUnverified):
		return http.StatusForbidden, true
	case errors.Is(err, service.ErrTicketInvalid):
		return http.StatusBadRequest, true
	case errors.Is(err, service.ErrProviderConflict):
		return http.StatusConflict, true
	}
	return 0, false
}
