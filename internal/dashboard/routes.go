package dashboard

import (
	"io/fs"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, reporter *Reporter) {
	// Embedded static assets (served from assets/ subdir of the embed.FS).
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	router.GET("/", HandleHTML(reporter))
	router.GET("/api/report", HandleJSON(reporter))
}

// Mount attaches the dashboard to an existing router under /dashboard,
// for servers that host it next to other routes.
func Mount(router *gin.Engine, reporter *Reporter) error {
	tmpl, err := parseTemplates()
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)

	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	router.GET("/dashboard", HandleHTML(reporter))
	router.GET("/dashboard/json", HandleJSON(reporter))
	return nil
}

// HandleHTML renders the report as a page.
func HandleHTML(reporter *Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := reporter.Generate(maxFailuresParam(c))
		if err != nil {
			c.String(http.StatusInternalServerError, "failed to generate report: %s", err)
			return
		}
		c.HTML(http.StatusOK, "dashboard.html", gin.H{
			"Report": report,
		})
	}
}

// HandleJSON serves the report as JSON. The api server mounts this
// same handler under /dashboard.
func HandleJSON(reporter *Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := reporter.Generate(maxFailuresParam(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func maxFailuresParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("failures"))
	if err != nil {
		return DefaultMaxFailures
	}
	return n
}
