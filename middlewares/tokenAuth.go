package middlewares

import (
	"CampaignClinic/apperrors"
	"CampaignClinic/utils"

	"github.com/gin-gonic/gin"
)

const (
	actorIDKey        = "actorID"
	AccessTokenHeader = "X-Access-Token"
)

// Identifier resolves a session token to the acting user's id.
type Identifier interface {
	Identify(token string) (int64, error)
}

// TokenAuthMiddleware identifies the caller from the session token and stores
// the user id in the context. The role is never trusted from the token; each
// service call reloads the user.
func TokenAuthMiddleware(identifier Identifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			HttpError(c, apperrors.Unauthorized("missing access token"))
			return
		}

		userID, err := identifier.Identify(token)
		if err != nil {
			HttpError(c, err)
			return
		}

		c.Set(actorIDKey, userID)
		c.Next()
	}
}

// accessToken looks in the header, then the session cookie, then the query string.
func accessToken(c *gin.Context) string {
	if token := c.GetHeader(AccessTokenHeader); token != "" {
		return token
	}
	if token, err := c.Cookie(utils.AccessTokenCookie); err == nil && token != "" {
		return token
	}
	return c.Query("accessToken")
}

// ActorID returns the id stored by TokenAuthMiddleware.
func ActorID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(actorIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// MustActorID is ActorID for routes behind TokenAuthMiddleware. It aborts the
// request when no caller is known.
func MustActorID(c *gin.Context) (int64, bool) {
	id, ok := ActorID(c)
	if !ok {
		HttpError(c, apperrors.Unauthorized("not authenticated"))
	}
	return id, ok
}
