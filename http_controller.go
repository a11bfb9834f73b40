package auth

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterMagicLinkRoutes mounts the passwordless flow on the router
func RegisterMagicLinkRoutes[T any](app router.Router[T], opts ...MagicLinkControllerOption) {

	controller := NewMagicLinkController(opts...)

	app.
		Post(controller.Routes.RequestLink, controller.RequestLink).
		SetName("magic-link.request")

	app.
		Get(fmt.Sprintf("%s/:token", controller.Routes.Verify), controller.VerifyLink).
		SetName("magic-link.verify")

	app.
		Post(controller.Routes.Refresh, controller.RefreshSession).
		SetName("session.refresh")

	app.
		Post(controller.Routes.Logout, controller.Logout).
		SetName("session.logout")
}

type MagicLinkControllerRoutes struct {
	RequestLink string
	Verify      string
	Refresh     string
	Logout      string
}

type MagicLinkController struct {
	Debug        bool
	Logger       Logger
	Issuer       *LinkIssuer
	Verifier     *LinkVerifier
	Sessions     *SessionManager
	Transport    *SessionTransport
	Routes       *MagicLinkControllerRoutes
	ErrorHandler router.ErrorHandler
}

type MagicLinkControllerOption func(*MagicLinkController) *MagicLinkController

func NewMagicLinkController(opts ...MagicLinkControllerOption) *MagicLinkController {
	c := &MagicLinkController{
		Logger: defLogger{},
		Routes: &MagicLinkControllerRoutes{
			RequestLink: "/auth/magic-link",
			Verify:      "/auth/verify",
			Refresh:     "/auth/session/refresh",
			Logout:      "/auth/session/logout",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = defaultControllerErrHandler(c.Logger)
	}

	if c.Issuer == nil {
		panic("Missing LinkIssuer in magic link controller...")
	}

	if c.Verifier == nil {
		panic("Missing LinkVerifier in magic link controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionManager in magic link controller...")
	}

	if c.Transport == nil {
		panic("Missing SessionTransport in magic link controller...")
	}

	return c
}

func WithControllerLogger(logger Logger) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerComponents(issuer *LinkIssuer, verifier *LinkVerifier, sessions *SessionManager, transport *SessionTransport) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Issuer = issuer
		c.Verifier = verifier
		c.Sessions = sessions
		c.Transport = transport
		return c
	}
}

func WithControllerDebug(debug bool) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Debug = debug
		return c
	}
}

// RequestLinkPayload is the link request body
type RequestLinkPayload struct {
	Tenant string `form:"tenant" json:"tenant"`
	Email  string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r RequestLinkPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Tenant, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
	)
}

func (a *MagicLinkController) RequestLink(ctx router.Context) error {
	payload := new(RequestLinkPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("request link parse payload: ", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse body"},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, router.ViewContext{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= MAGIC LINK REQUEST ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=================================")
	}

	result, err := a.Issuer.Issue(ctx.Context(), IssueLinkRequest{
		TenantSlug: payload.Tenant,
		Email:      payload.Email,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	response := router.ViewContext{
		"message":    "If the address is registered, a sign in link is on its way",
		"expires_at": result.ExpiresAt,
	}
	if result.Link != "" {
		response["link"] = result.Link
	}

	return ctx.JSON(fiber.StatusAccepted, response)
}

func (a *MagicLinkController) VerifyLink(ctx router.Context) error {
	rawToken := ctx.Param("token")
	tenantSlug := ctx.Query("tenant", "")

	result, err := a.Verifier.Verify(ctx.Context(), tenantSlug, rawToken)
	if err != nil {
		if IsLinkRejection(err) {
			// every link failure collapses into one message so the
			// response does not leak which check failed
			return ctx.JSON(fiber.StatusUnauthorized, router.ViewContext{
				"error": GenericLinkFailureMessage,
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	creds, err := a.Sessions.Create(ctx.Context(), result.Tenant, result.Principal)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Transport.WriteCredentials(ctx, creds)

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"access_token":       creds.AccessToken,
		"refresh_token":      creds.RefreshToken,
		"access_expires_at":  creds.AccessExpiresAt,
		"refresh_expires_at": creds.RefreshExpiresAt,
		"tenant_id":          creds.TenantID,
	})
}

// RefreshPayload carries the refresh credential when the client does not
// use the cookie transport
type RefreshPayload struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

func (a *MagicLinkController) RefreshSession(ctx router.Context) error {
	raw := a.Transport.RefreshCredential(ctx)
	if raw == "" {
		payload := new(RefreshPayload)
		if err := ctx.Bind(payload); err == nil {
			raw = payload.RefreshToken
		}
	}

	if raw == "" {
		return ctx.JSON(fiber.StatusUnauthorized, router.ViewContext{
			"error":      ErrInvalidRefresh.Message,
			"error_code": ErrInvalidRefresh.TextCode,
		})
	}

	creds, err := a.Sessions.Refresh(ctx.Context(), raw)
	if err != nil {
		a.Transport.ClearCredentials(ctx)
		return a.ErrorHandler(ctx, err)
	}

	a.Transport.WriteCredentials(ctx, creds)

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"access_token":       creds.AccessToken,
		"refresh_token":      creds.RefreshToken,
		"access_expires_at":  creds.AccessExpiresAt,
		"refresh_expires_at": creds.RefreshExpiresAt,
		"tenant_id":          creds.TenantID,
	})
}

func (a *MagicLinkController) Logout(ctx router.Context) error {
	raw := a.Transport.RefreshCredential(ctx)
	if raw != "" {
		if err := a.Sessions.Revoke(ctx.Context(), raw); err != nil {
			a.Logger.Error("session revoke: ", "error", err)
		}
	}

	a.Transport.ClearCredentials(ctx)

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"message": "signed out",
	})
}

func defaultControllerErrHandler(logger Logger) router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		logger.Error("controller error: ", "error", err)
		return RenderErrorJSON(ctx, err)
	}
}
