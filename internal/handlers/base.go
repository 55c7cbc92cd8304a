package handlers

import (
	"net/http"
	"strconv"

	"yoforex/internal/middleware"
	"yoforex/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respond writes the common {"success", "message", ...} envelope.
func respond(c *gin.Context, code int, success bool, message string, extra gin.H) {
	body := gin.H{"success": success, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(code, body)
}

func jsonOK(c *gin.Context, message string, extra gin.H) {
	respond(c, http.StatusOK, true, message, extra)
}

func jsonFail(c *gin.Context, code int, message string) {
	respond(c, code, false, message, nil)
}

// internalError logs the cause and hides it from the client.
func internalError(c *gin.Context, err error) {
	zap.L().Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	jsonFail(c, http.StatusInternalServerError, "internal server error")
}

func currentUser(c *gin.Context) *models.User {
	u, exists := c.Get(middleware.CheckUserKey)
	if !exists {
		return nil
	}
	user, _ := u.(*models.User)
	return user
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		jsonFail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
