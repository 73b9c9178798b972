package middlewares

import (
	"net/http"

	"CampaignClinic/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RespondJSON writes a JSON response to the client.
func RespondJSON(c *gin.Context, data interface{}, status int) {
	c.JSON(status, data)
}

// HttpError writes err as a JSON error response. Service errors keep their
// kind and detail; anything else is logged and reported as a 500.
func HttpError(c *gin.Context, err error) {
	if e, ok := apperrors.As(err); ok {
		c.AbortWithStatusJSON(apperrors.HTTPStatus(e), e)
		return
	}
	Logger(c).Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"kind":  apperrors.KindInternal,
		"error": "internal server error",
	})
}

// BadRequest reports a body or parameter that could not be decoded.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"kind":  apperrors.KindValidation,
		"code":  "BAD_REQUEST",
		"error": message,
	})
}

// Logger returns the request scoped logger set by RequestLogger.
func Logger(c *gin.Context) *zerolog.Logger {
	return zerolog.Ctx(c.Request.Context())
}
