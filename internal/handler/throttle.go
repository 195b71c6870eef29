package handler

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"golang.org/x/time/rate"
)

const (
	throttleIdleTTL    = 5 * time.Minute
	throttleSweepEvery = 1024
)

type throttleClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ThrottleMiddleware applies an in-process token bucket per client IP to every request
func ThrottleMiddleware(rps float64, burst int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*throttleClient)
		calls   int
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		calls++
		if calls%throttleSweepEvery == 0 {
			for key, client := range clients {
				if now.Sub(client.lastSeen) > throttleIdleTTL {
					delete(clients, key)
				}
			}
		}

		client, found := clients[ip]
		if !found {
			client = &throttleClient{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[ip] = client
		}
		client.lastSeen = now
		allowed := client.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(1))
			abortWithError(c, domain.ErrRateLimited)
			return
		}

		c.Next()
	}
}
