package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imaliveapp/imalive/middleware"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// getUserID extracts the authenticated user ID placed by the auth middleware.
func getUserID(ctx *gin.Context) (uint, bool) {
	v, ok := ctx.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
