package health

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Manager tracks readiness per backing dependency (postgres, redis,
// kafka). The service reports ready only while every registered
// component is up; components never registered do not gate readiness.
type Manager struct {
	mu         sync.RWMutex
	components map[string]bool
}

func NewManager() *Manager {
	return &Manager{components: make(map[string]bool)}
}

func (m *Manager) SetComponent(name string, up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = up
}

func (m *Manager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, up := range m.components {
		if !up {
			return false
		}
	}
	return true
}

// Down returns the names of components currently failing.
func (m *Manager) Down() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var down []string
	for name, up := range m.components {
		if !up {
			down = append(down, name)
		}
	}
	return down
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsReady() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "down": m.Down()})
	}
}
