package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit limits requests per client ip. formatted uses limiter syntax, e.g. "10-M".
func RateLimit(formatted string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", formatted, err)
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return func(c *gin.Context) {
		limit, err := instance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable, request allowed")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limit.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limit.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limit.Reset, 10))

		if limit.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests, try again later",
				"error":   "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}, nil
}
