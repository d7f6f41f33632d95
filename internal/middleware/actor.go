package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const actorContextKey = "actor_id"

// Actor resolves the acting user from the X-Actor-ID header set by the
// authenticating gateway. Requests without a usable identity are rejected.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Actor-ID")
		actorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || actorID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_ACTOR",
					"message": "A valid X-Actor-ID header is required",
				},
			})
			return
		}
		c.Set(actorContextKey, actorID)
		c.Next()
	}
}

// ActorID returns the acting user id stored by Actor.
func ActorID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return 0, false
	}
	actorID, ok := value.(int64)
	return actorID, ok
}
