package dashboard

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/history"
	"github.com/zulandar/humpyard/internal/status"
	"gorm.io/gorm"
)

type handlers struct {
	db         *gorm.DB
	fs         afero.Fs
	statusPath string
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.handleHealth)

	api := router.Group("/api")
	api.GET("/status", h.handleStatus)
	api.GET("/runs", h.handleRunList)
	api.GET("/runs/:id", h.handleRunDetail)
	api.GET("/files", h.handleFileHistory)
	api.GET("/events", h.handleSSE)
}

func (h *handlers) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusView adds derived totals to the status document.
type statusView struct {
	*status.File
	Migrated int     `json:"migrated"`
	Pending  int     `json:"pending"`
	Progress float64 `json:"progress"`
}

func (h *handlers) handleStatus(c *gin.Context) {
	f, err := status.Read(h.fs, h.statusPath)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusView{
		File:     f,
		Migrated: len(f.MigratedFiles),
		Pending:  len(f.PendingFiles),
		Progress: f.Progress(),
	})
}

func (h *handlers) handleRunList(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	runs, err := history.ListRuns(h.db, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *handlers) handleRunDetail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	run, err := history.GetRun(h.db, uint(id))
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, history.ErrRunNotFound) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *handlers) handleFileHistory(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	rows, err := history.FileHistory(h.db, path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "results": rows})
}
