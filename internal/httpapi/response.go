package httpapi

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/apperr"
)

// All responses share the {success, message?, data?, count?} envelope.

func respond(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func respondCount(c *gin.Context, count int, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count, "data": data})
}

func respondErr(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "server error"
	}
	c.JSON(status, gin.H{"success": false, "message": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}
