package middleware

import (
	stderrors "errors"
	"net/http"

	"worklens/internal/core/domain"
	"worklens/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FromDomain maps a domain sentinel to its AppError. Unknown errors map to
// an internal error that keeps err as its cause.
func FromDomain(err error) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrAuthInvalid):
		return errors.WrapError(err, errors.ErrCodeAuthInvalid, "invalid or expired credential", http.StatusUnauthorized)
	case stderrors.Is(err, domain.ErrForbidden):
		return errors.WrapError(err, errors.ErrCodeForbidden, "forbidden", http.StatusForbidden)
	case stderrors.Is(err, domain.ErrNoActiveSession):
		return errors.NewNoActiveSessionError(err)
	case stderrors.Is(err, domain.ErrAccountNotFound):
		return errors.NewNotFoundError("account", err)
	case stderrors.Is(err, domain.ErrInvalidInterval):
		return errors.NewInvalidIntervalError(err)
	case stderrors.Is(err, domain.ErrInvalidInput):
		return errors.WrapError(err, errors.ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	case stderrors.Is(err, domain.ErrStorageFailure):
		return errors.NewStorageFailureError(err)
	default:
		return errors.NewInternalError(err)
	}
}

// ErrorHandlerMiddleware renders the last error attached to the context as
// {error, message, details}.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := FromDomain(err)

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("application error",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err.Error(),
			)
		} else {
			logger.Debugw("request rejected",
				"code", appErr.Code,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
