package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	components map[string]pinger
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		components: map[string]pinger{
			"postgres": infra.Postgres(),
			"redis":    infra.Redis(),
		},
	}
}

// check pings every component concurrently and returns the failures by name
func (h *HealthChecker) check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(h.components))

	for name, component := range h.components {
		go func() {
			results <- result{name: name, err: component.Ping(ctx)}
		}()
	}

	failures := make(map[string]string)
	for range h.components {
		if r := <-results; r.err != nil {
			failures[r.name] = r.err.Error()
		}
	}
	return failures
}

func (h *HealthChecker) Handler(c *gin.Context) {
	if failures := h.check(c.Request.Context()); len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "fail",
			"checks": failures,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "pass",
	})
}
