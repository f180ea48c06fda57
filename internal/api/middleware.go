package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/madofuller/discordscraper/internal/security"
)

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range s.cfg.CORSOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		s.log.Info("http_request",
			"method", method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", clientIP,
		)
	}
}

// rateLimitMiddleware enforces a fixed per-minute window per client IP,
// counted in redis so limits hold across API replicas. Without redis it
// falls back to an in-process token bucket.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	local := security.NewLimiterStore(rate.Limit(2), 10, 10*time.Minute)

	return func(c *gin.Context) {
		if s.redis == nil {
			if !local.Allow(c.ClientIP()) {
				s.tooManyRequests(c)
				return
			}
			c.Next()
			return
		}

		var limit int64 = 120 // req/min
		if strings.Contains(c.Request.URL.Path, "/messages") {
			limit = 60
		}

		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), time.Now().Unix()/60)
		count, err := s.redis.Increment(c.Request.Context(), key, time.Minute)
		if err != nil {
			// rate limiting is best-effort; never block reads on redis
			c.Next()
			return
		}
		if count > limit {
			s.tooManyRequests(c)
			return
		}

		c.Next()
	}
}

func (s *Server) tooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": gin.H{"code": "rate_limited", "message": "too many requests"},
	})
	c.Abort()
}

// apiKeyMiddleware requires a bearer token when API_KEY is configured.
func (s *Server) apiKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "invalid api key"},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
