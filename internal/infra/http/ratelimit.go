package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chlumarket/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	routeVendorsRegister  = "vendors:register"
	routeVendorsProfile   = "vendors:profile"
	routeVendorsSignature = "vendors:signature"
	routeVendorsPoPR      = "vendors:popr"
)

func (s *Server) rateLimited(routeID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.enforceRateLimit(c, routeID) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// rateLimitSubjects lists the budgets a request draws from: the calling
// client and, on /vendors/:id routes, the vendor being written to.
func rateLimitSubjects(c *gin.Context, routeID string) []string {
	subjects := []string{fmt.Sprintf("client:%s:endpoint:%s", c.ClientIP(), routeID)}
	if vendorID := c.Param("id"); vendorID != "" {
		subjects = append(subjects, fmt.Sprintf("vendor:%s:endpoint:%s", vendorID, routeID))
	}
	return subjects
}

func (s *Server) enforceRateLimit(c *gin.Context, routeID string) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}

	var tightest domain.RateLimitDecision
	for i, subject := range rateLimitSubjects(c, routeID) {
		decision, err := s.rateLimiter.Allow(c.Request.Context(), subject, s.rateLimitRequests, s.rateLimitWindow)
		if err != nil {
			log.Warnw("rate limiter unavailable", "route", routeID, "error", err)
			if s.rateLimitFailClosed {
				writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
				return false
			}
			return true
		}
		if i == 0 || !decision.Allowed || decision.Remaining < tightest.Remaining {
			tightest = decision
		}
		if !decision.Allowed {
			log.Infow("rate limited", "route", routeID, "subject", subject)
			break
		}
	}
	writeRateLimitHeaders(c, tightest)
	if !tightest.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
