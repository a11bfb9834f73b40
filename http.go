package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RefreshCookieName is the cookie carrying the refresh credential. It is
// path scoped to the refresh endpoint so browsers do not attach it to
// every request.
const RefreshCookieName = "refresh_token"

// SessionTransport moves credential pairs between the session manager
// and HTTP cookies. The access token rides under the configured context
// key, the refresh credential under RefreshCookieName.
type SessionTransport struct {
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewSessionTransport(cfg Config) *SessionTransport {
	t := &SessionTransport{
		cfg:    cfg,
		Logger: defLogger{},
	}

	t.ErrorHandler = t.defaultErrHandler
	t.AuthErrorHandler = t.defaultAuthErrHandler

	return t
}

// WriteCredentials sets both cookies from a freshly minted pair
func (t *SessionTransport) WriteCredentials(ctx router.Context, creds *Credentials) {
	t.setCookie(ctx, t.cfg.GetContextKey(), creds.AccessToken, creds.AccessExpiresAt, "/")
	t.setCookie(ctx, RefreshCookieName, creds.RefreshToken, creds.RefreshExpiresAt, "/auth/session")
}

// ClearCredentials expires both cookies
func (t *SessionTransport) ClearCredentials(ctx router.Context) {
	t.cookieDel(ctx, t.cfg.GetContextKey(), "/")
	t.cookieDel(ctx, RefreshCookieName, "/auth/session")
}

// RefreshCredential reads the refresh cookie, falling back to the
// request body field handled by the controller.
func (t *SessionTransport) RefreshCredential(ctx router.Context) string {
	return ctx.Cookies(RefreshCookieName)
}

func (t *SessionTransport) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := rejectedRouteKey
	r := ctx.Cookies(rejectedRoute)
	if r == "" && len(def) > 0 {
		return def[0]
	}
	t.cookieDel(ctx, rejectedRoute, "/")
	return r
}

func (t *SessionTransport) SetRedirect(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     rejectedRouteKey,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   t.secureCookies(),
		SameSite: "Lax",
	})
}

const rejectedRouteKey = "rejected_route"

func (t *SessionTransport) setCookie(c router.Context, name, val string, expires time.Time, path string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Path:     path,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   t.secureCookies(),
		SameSite: "Lax",
	})
}

func (t *SessionTransport) cookieDel(c router.Context, name, path string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   t.secureCookies(),
		SameSite: "Lax",
	})
}

// secureCookies is only relaxed outside production so local development
// over plain HTTP keeps working.
func (t *SessionTransport) secureCookies() bool {
	return t.cfg.GetEnvironment() == EnvProduction
}

// RenderErrorJSON maps error categories onto HTTP statuses, keeping the
// unauthenticated and forbidden split intact.
func RenderErrorJSON(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return c.JSON(fiber.StatusInternalServerError, router.ViewContext{
			"error": "internal error",
		})
	}

	status := fiber.StatusInternalServerError
	switch richErr.Category {
	case errors.CategoryAuth:
		status = fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		status = fiber.StatusForbidden
	case errors.CategoryBadInput, errors.CategoryValidation:
		status = fiber.StatusBadRequest
	case errors.CategoryNotFound:
		status = fiber.StatusNotFound
	case errors.CategoryConflict:
		status = fiber.StatusConflict
	case errors.CategoryRateLimit:
		status = fiber.StatusTooManyRequests
	}

	return c.JSON(status, router.ViewContext{
		"error":      richErr.Message,
		"error_code": richErr.TextCode,
	})
}

func (t *SessionTransport) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	t.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	t.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/auth/login", statusCode)
}

func (t *SessionTransport) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	t.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return t.AuthErrorHandler(c, richErr)
	default:
		return c.JSON(richErr.Code, router.ViewContext{
			"error": richErr.Message,
		})
	}
}
