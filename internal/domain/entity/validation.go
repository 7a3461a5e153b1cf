package entity

import (
	"fmt"
	"net/url"
)

// maxURLLength bounds feed and site URLs. OPML imports hand attacker-sized
// input straight to validation, so the cap is enforced before parsing.
const maxURLLength = 2048

// ValidateURL validates the shape of a URL: it must be well-formed, use an
// http or https scheme, and carry a host. Reachability and SSRF policy are
// the egress gatekeeper's responsibility, not the entity's.
// Every failure is reported as a *ValidationError on the "url" field.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}

	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: "URL is not parseable"}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}

	if parsedURL.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}

	return nil
}
