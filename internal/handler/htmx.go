package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HTMXError is returned by handlers serving htmx requests. The error
// handler renders it as a failure toast instead of an error page.
type HTMXError struct {
	Internal error `json:"-"`
	Message  any   `json:"message"`
	Code     int   `json:"-"`
}

func newHTMXError(code int, message ...any) *HTMXError {
	he := &HTMXError{Code: code, Message: http.StatusText(code)}
	if len(message) > 0 {
		he.Message = message[0]
	}
	return he
}

func (he *HTMXError) Error() string {
	if he.Internal == nil {
		return fmt.Sprintf("code=%d, message=%v", he.Code, he.Message)
	}
	return fmt.Sprintf("code=%d, message=%v, internal=%v", he.Code, he.Message, he.Internal)
}

func (he *HTMXError) WithInternal(err error) *HTMXError {
	return &HTMXError{
		Code:     he.Code,
		Message:  he.Message,
		Internal: err,
	}
}

func (he *HTMXError) Unwrap() error {
	return he.Internal
}

func isHXRequest(c echo.Context) bool {
	return c.Request().Header.Get("hx-request") != ""
}

func hxRedirect(c echo.Context, url string) error {
	c.Response().Header().Set("hx-redirect", url)
	return nil
}

func hxRetarget(c echo.Context, target string) error {
	c.Response().Header().Set("hx-retarget", target)
	return nil
}

func hxReswap(c echo.Context, swap string) error {
	c.Response().Header().Set("hx-reswap", swap)
	return nil
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
