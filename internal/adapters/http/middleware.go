package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const clientTokenKey = "client_token"

// ClientTokenMiddleware keeps a random client token in the signed session
// cookie. It names the browser in logs, nothing more.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ClientLimiter hands out one token bucket per client address. A bucket
// left idle long enough to refill completely is evicted; a fresh one
// behaves the same.
type ClientLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
	idle    time.Duration
}

func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	idle := time.Duration(float64(burst) / perSecond * float64(time.Second))
	if idle < time.Minute {
		idle = time.Minute
	}
	return &ClientLimiter{
		buckets: cache.New(idle, idle),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
	}
}

func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lim *rate.Limiter
	if v, ok := l.buckets.Get(client); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// every hit pushes eviction out again
	l.buckets.Set(client, lim, l.idle)
	return lim.Allow()
}

// Len reports how many client buckets are held.
func (l *ClientLimiter) Len() int {
	return l.buckets.ItemCount()
}

// RateLimitMiddleware keys on the client address. The session cookie is
// not used: a client that drops it would get a fresh bucket every time.
func RateLimitMiddleware(l *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			log.Warn().Str("module", "adapters.http").Str("ip", c.ClientIP()).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
