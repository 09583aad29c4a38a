package client

import (
	"context"
	"net/url"
	"time"

	id "healthcommons/pkg/domain"
)

func consentPath(hash id.Hash, suffix string) string {
	return "/consents/" + url.PathEscape(hash.String()) + suffix
}

func (c *Client) GrantConsent(ctx context.Context, req GrantConsentRequest) (*Consent, error) {
	var out Consent
	if err := c.post(ctx, "/consents", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConsent(ctx context.Context, hash id.Hash) (*Consent, error) {
	var out Consent
	if err := c.get(ctx, consentPath(hash, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RevokeConsent(ctx context.Context, hash id.Hash, reason string) (*Consent, error) {
	var out Consent
	if err := c.post(ctx, consentPath(hash, "/revoke"), map[string]string{"reason": reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtendConsent creates a new version of the consent valid until validUntil.
func (c *Client) ExtendConsent(ctx context.Context, hash id.Hash, validUntil time.Time) (*Consent, error) {
	var out Consent
	if err := c.post(ctx, consentPath(hash, "/extend"), map[string]time.Time{"valid_until": validUntil}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateConsentScope(ctx context.Context, hash id.Hash, req UpdateScopeRequest) (*Consent, error) {
	var out Consent
	if err := c.post(ctx, consentPath(hash, "/scope"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConsents lists consents the caller granted, or received when received is true.
func (c *Client) ListConsents(ctx context.Context, received bool) ([]Consent, error) {
	var query map[string]string
	if received {
		query = map[string]string{"received": "true"}
	}
	var out struct {
		Consents []Consent `json:"consents"`
	}
	if err := c.get(ctx, "/consents", query, &out); err != nil {
		return nil, err
	}
	return out.Consents, nil
}

// ConsentHistory returns every version of a consent, oldest first.
func (c *Client) ConsentHistory(ctx context.Context, hash id.Hash) ([]Consent, error) {
	var out struct {
		Consents []Consent `json:"consents"`
	}
	if err := c.get(ctx, consentPath(hash, "/history"), nil, &out); err != nil {
		return nil, err
	}
	return out.Consents, nil
}
