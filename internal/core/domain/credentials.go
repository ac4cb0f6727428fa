package domain

import (
	"strings"
	"time"
)

// Credentials is the single live credential record for a provider. It is
// created out-of-band, read by every component, and overwritten in place by
// token refresh or rotation. Last write wins; there is no versioning.
type Credentials struct {
	Provider string `json:"provider"`

	// Cookie material captured from a browser session. The full header is
	// the authoritative fallback; MinimalCookieHeader derives the cheap
	// projection used for probe calls.
	Cookies   string `json:"cookies"`
	UserAgent string `json:"user_agent"`

	// OAuth material used by the refresh flow.
	AccessToken  string `json:"-"` // Never serialize
	RefreshToken string `json:"-"` // Never serialize
	UserID       string `json:"user_id"`

	// TokenTimestamp records when the access token was last refreshed.
	TokenTimestamp *time.Time `json:"token_timestamp,omitempty"`

	// Rotation bookkeeping.
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
	LastRotated   *time.Time `json:"last_rotated,omitempty"`
	RotationCount int        `json:"rotation_count"`
}

// Cookie names that form the minimal authentication projection.
const (
	CookieAccessToken = "gp_access_token"
	CookieUserID      = "gp_user_id"
)

// CookieValue extracts a single cookie's value from the stored cookie
// header. Returns empty string when the cookie is absent.
func (c *Credentials) CookieValue(name string) string {
	for _, part := range strings.Split(c.Cookies, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			return part[len(name)+1:]
		}
	}
	return ""
}

// MinimalCookieHeader builds the smallest cookie header known to authorize
// API calls. ok is false when either required cookie is missing, in which
// case callers go straight to the full header.
func (c *Credentials) MinimalCookieHeader() (header string, ok bool) {
	token := c.CookieValue(CookieAccessToken)
	user := c.CookieValue(CookieUserID)
	if token == "" || user == "" {
		return "", false
	}
	return CookieAccessToken + "=" + token + "; " + CookieUserID + "=" + user, true
}

// AgeDays returns the credential age in days measured from LastUpdated.
// A missing timestamp yields 0; callers log that condition, it is not fatal.
func (c *Credentials) AgeDays(now time.Time) float64 {
	if c.LastUpdated == nil {
		return 0
	}
	age := now.Sub(*c.LastUpdated)
	if age < 0 {
		return 0
	}
	return age.Hours() / 24
}

// TokenFresh reports whether the access token was refreshed within maxAge
// and can be reused without another refresh round trip.
func (c *Credentials) TokenFresh(now time.Time, maxAge time.Duration) bool {
	if c.AccessToken == "" || c.TokenTimestamp == nil {
		return false
	}
	return now.Sub(*c.TokenTimestamp) < maxAge
}

// ValidationMethod identifies which credential projection satisfied the
// probe during token validation.
type ValidationMethod string

const (
	ValidationMinimal ValidationMethod = "minimal"
	ValidationFull    ValidationMethod = "full"
)

// ValidationResult is returned by the token validator on success and feeds
// the orchestration branch.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Method   ValidationMethod `json:"validation_method"`
	AgeDays  float64          `json:"credential_age_days"`
	Duration time.Duration    `json:"duration"`
}
