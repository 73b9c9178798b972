package handlers

import (
	"strconv"

	"CampaignClinic/middlewares"

	"github.com/gin-gonic/gin"
)

// idParam parses a numeric path parameter, answering 400 when it is not one.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		middlewares.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		middlewares.BadRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// reasonBody is the optional body of cancel requests.
type reasonBody struct {
	Reason string `json:"reason"`
}

// bindOptionalJSON decodes the body when one was sent.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, v)
}
