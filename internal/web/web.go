package web

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed static/index.html
var assets embed.FS

// Register serves the page at /.
func Register(router gin.IRouter) {
	router.GET("/", func(c *gin.Context) {
		page, err := assets.ReadFile("static/index.html")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "page unavailable"})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	})
}
