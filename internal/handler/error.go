package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/artifact"
	"github.com/haatos/runkeeper/internal/build"
	"github.com/haatos/runkeeper/internal/service"
	"github.com/haatos/runkeeper/internal/views"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		log.WithError(err).WithField("path", c.Request().URL.Path).Warn("err after response was committed")
		return
	}

	var hxErr *HTMXError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &hxErr):
		logHandlerError(c, hxErr.Code, hxErr.Internal)
		if err := renderToast(c, views.FailureToast(fmt.Sprint(hxErr.Message), 4000)); err != nil {
			log.WithError(err).Error("err rendering toast")
		}
	case errors.As(err, &httpErr):
		logHandlerError(c, httpErr.Code, httpErr.Internal)
		message := fmt.Sprint(httpErr.Message)
		if wantsJSON(c) {
			if err := c.JSON(httpErr.Code, ErrorResponse{Message: message}); err != nil {
				log.WithError(err).Error("err returning json")
			}
			return
		}
		if err := errorPage(c, httpErr.Code, message); err != nil {
			log.WithError(err).Error("err rendering error page")
		}
	default:
		logHandlerError(c, http.StatusInternalServerError, err)
		if err := c.JSON(
			http.StatusInternalServerError,
			ErrorResponse{Message: "something went terribly wrong"},
		); err != nil {
			log.WithError(err).Error("err returning json")
		}
	}
}

func logHandlerError(c echo.Context, status int, internal error) {
	entry := log.WithFields(log.Fields{
		"path":   c.Request().URL.Path,
		"status": status,
	})
	if internal != nil {
		entry = entry.WithError(internal)
	}
	if status >= http.StatusInternalServerError {
		entry.Error("handler internal error")
		return
	}
	entry.Warn("handler error")
}

func errorPage(c echo.Context, status int, message string) error {
	title := fmt.Sprintf("%d - %s", status, http.StatusText(status))
	if isHXRequest(c) {
		return renderStatus(c, status, views.ErrorMain(title, message))
	}
	return renderStatus(c, status, views.ErrorPage(title, message))
}

func newError(c echo.Context, err error, status int, message string) error {
	if isHXRequest(c) {
		e := newHTMXError(status, message)
		if err != nil {
			e = e.WithInternal(err)
		}
		return e
	}

	e := echo.NewHTTPError(status, message)
	if err != nil {
		e = e.WithInternal(err)
	}
	return e
}

// serviceError maps build and service errors to HTTP statuses. Denial
// reasons are passed through as plain text; every renderer escapes them.
func serviceError(c echo.Context, err error) error {
	var denied *build.DeletionDeniedError
	var illegal *build.IllegalStateError
	var full *service.ErrRunQueueFull
	switch {
	case errors.As(err, &denied):
		return newError(c, err, http.StatusConflict, denied.Error())
	case errors.Is(err, build.ErrDeleteInProgress):
		return newError(c, err, http.StatusConflict, "the build is already being deleted")
	case errors.As(err, &illegal):
		return newError(c, err, http.StatusBadRequest, illegal.Error())
	case errors.Is(err, service.ErrJobNotFound):
		return newError(c, err, http.StatusNotFound, "job not found")
	case errors.Is(err, service.ErrRecordNotFound), errors.Is(err, build.ErrRecordDeleted):
		return newError(c, err, http.StatusNotFound, "build not found")
	case errors.Is(err, artifact.ErrNoArtifacts), errors.Is(err, fs.ErrNotExist):
		return newError(c, err, http.StatusNotFound, "artifact not found")
	case errors.Is(err, artifact.ErrInvalidName):
		return newError(c, err, http.StatusBadRequest, "invalid artifact name")
	case errors.As(err, &full):
		return newError(c, err, http.StatusTooManyRequests, full.Error())
	case errors.Is(err, artifact.ErrTimeout):
		return newError(c, err, http.StatusBadGateway, "artifact store did not respond in time")
	case errors.Is(err, build.ErrStoreFailure):
		return newError(c, err, http.StatusBadGateway, "artifact store failure")
	default:
		return newError(c, err, http.StatusInternalServerError, "something went wrong")
	}
}
