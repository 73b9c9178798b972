package utils

import (
	"github.com/gin-gonic/gin"
)

const AccessTokenCookie = "accessToken"

func SetAuthCookie(c *gin.Context, accessToken string) {
	c.SetCookie(AccessTokenCookie, accessToken, int(AccessTokenExpiry.Seconds()), "/", "", secureCookies(), true)
}

func ClearAuthCookie(c *gin.Context) {
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", secureCookies(), true)
}

func secureCookies() bool {
	return gin.Mode() != gin.DebugMode
}
