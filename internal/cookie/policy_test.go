package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anonymouswhite07/bulkwala-backend/internal/config"
)

const (
	uaSafariMac    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
	uaSafariIPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaChrome       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaChromeMobile = "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaFirefox      = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func newRequest(proto string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	if proto == "https" {
		r.Header.Set("X-Forwarded-Proto", "https")
	}
	return r
}

func TestDerivePolicyTable(t *testing.T) {
	cases := []struct {
		name         string
		crossSite    bool
		proto        string
		wantSecure   bool
		wantSameSite http.SameSite
	}{
		{"cross-site over plain http", true, "http", false, http.SameSiteLaxMode},
		{"cross-site over tls", true, "https", true, http.SameSiteNoneMode},
		{"same-site over https", false, "https", true, http.SameSiteLaxMode},
		{"same-site plain http dev", false, "http", false, http.SameSiteLaxMode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.CookieConfig{CrossSite: tc.crossSite, Path: "/", MaxAge: 7 * 24 * time.Hour}
			attrs := Derive(cfg, newRequest(tc.proto))
			if attrs.Secure != tc.wantSecure {
				t.Fatalf("secure: got %v, want %v", attrs.Secure, tc.wantSecure)
			}
			if attrs.SameSite != tc.wantSameSite {
				t.Fatalf("sameSite: got %v, want %v", attrs.SameSite, tc.wantSameSite)
			}
			if attrs.Path != "/" {
				t.Fatalf("path: got %q", attrs.Path)
			}
			if attrs.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
				t.Fatalf("maxAge: got %d", attrs.MaxAge)
			}
		})
	}
}

func TestDeriveHostOnlyUnlessDomainConfigured(t *testing.T) {
	cfg := config.CookieConfig{Path: "/", MaxAge: time.Hour}
	if attrs := Derive(cfg, newRequest("https")); attrs.Domain != "" {
		t.Fatalf("expected host-only cookie, got domain %q", attrs.Domain)
	}

	cfg.Domain = ".example.com"
	if attrs := Derive(cfg, newRequest("https")); attrs.Domain != ".example.com" {
		t.Fatalf("expected configured domain, got %q", attrs.Domain)
	}
}

func TestDeriveDefaultsPath(t *testing.T) {
	attrs := Derive(config.CookieConfig{MaxAge: time.Hour}, newRequest("http"))
	if attrs.Path != "/" {
		t.Fatalf("expected default path /, got %q", attrs.Path)
	}
}

func TestIsSafari(t *testing.T) {
	cases := []struct {
		ua   string
		want bool
	}{
		{uaSafariMac, true},
		{uaSafariIPhone, true},
		{uaChrome, false},
		{uaChromeMobile, false},
		{uaFirefox, false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsSafari(tc.ua); got != tc.want {
			t.Fatalf("IsSafari(%q) = %v, want %v", tc.ua, got, tc.want)
		}
	}
}

func TestNeedsRecoveryToken(t *testing.T) {
	crossSite := config.CookieConfig{CrossSite: true}
	sameSite := config.CookieConfig{}

	if !NeedsRecoveryToken(crossSite, uaSafariIPhone) {
		t.Fatalf("safari on a cross-site deployment needs a recovery token")
	}
	if NeedsRecoveryToken(crossSite, uaChrome) {
		t.Fatalf("chrome does not need a recovery token")
	}
	if NeedsRecoveryToken(sameSite, uaSafariIPhone) {
		t.Fatalf("same-site deployments never need recovery tokens")
	}
}

func TestSetAndClearCookies(t *testing.T) {
	attrs := Attributes{Secure: true, SameSite: http.SameSiteNoneMode, Path: "/", MaxAge: 3600}

	w := httptest.NewRecorder()
	Set(w, RefreshCookie, "tok", attrs)
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteNoneMode || ck.Value != "tok" {
		t.Fatalf("unexpected cookie: %+v", ck)
	}

	w = httptest.NewRecorder()
	Clear(w, RefreshCookie, attrs)
	cookies = w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Fatalf("expected clearing cookie, got %+v", cookies)
	}
}
