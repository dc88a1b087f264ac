package payment

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveSuccessURL returns raw unchanged when it is HTTPS. Any other scheme
// (typically an app deep link) is wrapped in the HTTPS redirect endpoint,
// because providers only accept HTTPS return URLs.
func ResolveSuccessURL(raw, redirectEndpoint string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: successUrl is required", ErrInvalidRequest)
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" {
		return "", fmt.Errorf("%w: successUrl is not a valid URL", ErrInvalidRequest)
	}
	if strings.EqualFold(parsed.Scheme, "https") {
		return raw, nil
	}

	if redirectEndpoint == "" {
		return "", fmt.Errorf("%w: successUrl must be HTTPS and no redirect endpoint is configured", ErrInvalidRequest)
	}
	endpoint, err := url.Parse(redirectEndpoint)
	if err != nil || !strings.EqualFold(endpoint.Scheme, "https") {
		return "", fmt.Errorf("%w: redirect endpoint must be an HTTPS URL", ErrInvalidRequest)
	}

	query := endpoint.Query()
	query.Set("to", raw)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

// RedirectTarget validates the "to" parameter of the redirect endpoint. Only
// deep links with one of the allowed schemes are followed.
func RedirectTarget(to string, allowedSchemes []string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(to))
	if err != nil || parsed.Scheme == "" {
		return "", fmt.Errorf("%w: invalid redirect target", ErrInvalidRequest)
	}
	for _, scheme := range allowedSchemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return parsed.String(), nil
		}
	}
	return "", fmt.Errorf("%w: redirect scheme %q is not allowed", ErrInvalidRequest, parsed.Scheme)
}
