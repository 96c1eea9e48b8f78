package cookie

import (
	"net/http"
	"strings"

	"github.com/anonymouswhite07/bulkwala-backend/internal/config"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Attributes is the resolved transport policy for a token cookie.
// HTTPOnly is unconditional: page scripts never read the tokens.
type Attributes struct {
	Secure   bool
	SameSite http.SameSite
	Path     string
	Domain   string
	MaxAge   int
}

// Derive resolves cookie attributes from the configured policy and the
// request. Cross-site deployments need Secure + SameSite=None; a
// non-TLS request cannot carry a Secure cookie, so plain-HTTP traffic
// (local development) falls back to SameSite=Lax without Secure.
func Derive(cfg config.CookieConfig, r *http.Request) Attributes {
	attrs := Attributes{
		Path:   cfg.Path,
		Domain: cfg.Domain,
		MaxAge: int(cfg.MaxAge.Seconds()),
	}
	if attrs.Path == "" {
		attrs.Path = "/"
	}

	if cfg.CrossSite && requestIsSecure(r) {
		attrs.Secure = true
		attrs.SameSite = http.SameSiteNoneMode
		return attrs
	}

	attrs.Secure = requestIsSecure(r)
	attrs.SameSite = http.SameSiteLaxMode
	return attrs
}

// NeedsRecoveryToken reports whether the client should also receive a
// body-delivered recovery credential because its cookie store cannot be
// trusted across sites.
func NeedsRecoveryToken(cfg config.CookieConfig, userAgent string) bool {
	if !cfg.CrossSite {
		return false
	}
	return IsSafari(userAgent)
}

// IsSafari matches Safari-family user agents. Chrome and Android
// browsers also advertise "Safari" in their UA string and are excluded;
// the remainder apply ITP to cross-site cookies and get a recovery
// token as a fallback channel.
func IsSafari(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if !strings.Contains(ua, "safari") {
		return false
	}
	return !strings.Contains(ua, "chrome") && !strings.Contains(ua, "android")
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	return strings.Contains(strings.ToLower(proto), "https")
}

// Set writes a token cookie with the given attributes.
func Set(w http.ResponseWriter, name, value string, attrs Attributes) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		MaxAge:   attrs.MaxAge,
		Secure:   attrs.Secure,
		HttpOnly: true,
		SameSite: attrs.SameSite,
	})
}

// Clear expires a token cookie. Attributes must match the ones used
// when setting it or some browsers keep the original cookie.
func Clear(w http.ResponseWriter, name string, attrs Attributes) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		MaxAge:   -1,
		Secure:   attrs.Secure,
		HttpOnly: true,
		SameSite: attrs.SameSite,
	})
}
