package controllers

import (
	"net/http"
	"strconv"

	"checkout-service/middleware"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
)

// respondError renders a ServiceError with its code and details flattened
// next to the message.
func respondError(ctx *gin.Context, svcErr *services.ServiceError) {
	body := gin.H{"error": svcErr.Message}
	if svcErr.Code != "" {
		body["code"] = svcErr.Code
	}
	for k, v := range svcErr.Details {
		if k != "error" && k != "code" {
			body[k] = v
		}
	}
	ctx.JSON(svcErr.StatusCode, body)
}

func respondBindError(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": services.CodeBadRequest, "details": err.Error()})
}

// currentUser writes 401 and returns false when identity is missing.
func currentUser(ctx *gin.Context) (uint, bool) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

// idParam parses a positive numeric path parameter, writing 400 otherwise.
func idParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": services.CodeBadRequest})
		return 0, false
	}
	return uint(id), true
}

func boolFlag(v string) bool {
	b, err := strconv.ParseBool(v)
	if err == nil {
		return b
	}
	return v == "yes" || v == "on"
}
