package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/spot-safety/internal/safety"
)

// ActorHeader carries the id of the already authenticated caller.
const ActorHeader = "X-Actor-ID"

// ActorMiddleware rejects requests without an actor id and stores the id on
// the request context for safety.ContextIdentity.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorID(c)
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, safety.Result[any]{Error: safety.ErrMissingActorID})
			return
		}
		c.Request = c.Request.WithContext(safety.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}
