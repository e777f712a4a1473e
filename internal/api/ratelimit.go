package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mr1hm/spot-safety/internal/safety"
)

const codeRateLimited safety.Code = "RateLimited"

func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), rps)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, safety.Result[any]{
				Error: &safety.Error{Code: codeRateLimited, Message: "rate limit exceeded"},
			})
			return
		}
		c.Next()
	}
}
