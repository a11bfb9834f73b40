package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type IssueMagicLinkMessage struct {
	TenantSlug string `json:"tenant_slug"`
	Email      string `json:"email"`
}

func (e IssueMagicLinkMessage) Type() string { return "auth.link.issue" }

type IssueMagicLinkHandler struct {
	issuer *LinkIssuer
}

func NewIssueMagicLinkHandler(issuer *LinkIssuer) *IssueMagicLinkHandler {
	return &IssueMagicLinkHandler{issuer: issuer}
}

func (h *IssueMagicLinkHandler) Execute(ctx context.Context, event IssueMagicLinkMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during link issuance",
		)
	default:
		_, err := h.issuer.Issue(ctx, IssueLinkRequest{
			TenantSlug: event.TenantSlug,
			Email:      event.Email,
		})
		return err
	}
}
