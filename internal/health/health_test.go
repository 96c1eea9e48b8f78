package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReadinessTracksComponents(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := NewManager()
	router := gin.New()
	router.GET("/readyz", ReadinessHandler(m))

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return w
	}

	// No components registered yet: nothing can be failing.
	if w := get(); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with no components, got %d", w.Code)
	}

	m.SetComponent("postgres", true)
	m.SetComponent("redis", false)
	w := get()
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "redis") {
		t.Fatalf("expected failing component named in body, got %s", w.Body.String())
	}

	m.SetComponent("redis", true)
	if w := get(); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after recovery, got %d", w.Code)
	}
}
