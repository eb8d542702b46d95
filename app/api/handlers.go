package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/rss-ledger/app/database"
	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/tasks"
)

// NewHandler wires the HTTP handlers. runs and gatherer may be nil.
func NewHandler(configCache *feed.ConfigCache, runs database.RunRepository,
	scheduler tasks.TaskSchedulerInterface, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		configCache: configCache,
		runs:        runs,
		scheduler:   scheduler,
		gatherer:    gatherer,
	}
}

// GetFeed serves the last rendered output document of a source.
func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	source, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Debug("Source configuration not found", "source", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	info, err := os.Stat(source.OutputPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Output not rendered yet", "source", name, "path", source.OutputPath)
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to stat output", "source", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	data, err := os.ReadFile(source.OutputPath)
	if err != nil {
		slog.Error("Failed to read output", "source", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("X-Feed-Name", name)
	c.Header("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", data)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":                "ok",
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_configurations": h.configCache.GetConfigCount(),
	}

	if h.runs != nil {
		if count, err := h.runs.GetRunCount(); err == nil {
			health["runs"] = count
		}
	}

	c.JSON(http.StatusOK, health)
}

// GetStats reports the latest journal entry of every source.
func (h *Handler) GetStats(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusOK, gin.H{"sources": []gin.H{}, "total": 0})
		return
	}

	runs, err := h.runs.GetLatestRuns()
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	sources := make([]gin.H, 0, len(runs))
	for _, run := range runs {
		sources = append(sources, runInfo(run))
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	sources := make([]gin.H, 0, len(configs))
	for _, source := range configs {
		info := gin.H{
			"name":     source.Name,
			"type":     source.Type,
			"url":      source.URL,
			"enabled":  source.Settings.Enabled,
			"schedule": source.Schedule,
			"window":   source.Settings.Window,
			"ordering": source.Settings.Ordering,
			"key":      source.Settings.Key,
			"include":  len(source.Include),
		}

		if h.runs != nil {
			if run, err := h.runs.GetLatestRun(source.Name); err == nil && run != nil {
				info["last_run"] = runInfo(*run)
			}
		}

		sources = append(sources, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"total":   len(sources),
	})
}

// APISyncSource enqueues an immediate sync.
func (h *Handler) APISyncSource(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source name parameter"})
		return
	}

	if _, err := h.configCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	if err := h.scheduler.TriggerSync(name); err != nil {
		slog.Error("Error enqueueing sync task", "source", name, "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Sync task enqueued",
		"source":  name,
	})
}

// APIReloadSource re-reads a source's YAML file and enqueues a sync with
// the new configuration.
func (h *Handler) APIReloadSource(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source name parameter"})
		return
	}

	if _, err := h.configCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	source, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	response := gin.H{
		"success": true,
		"message": "Configuration reloaded",
		"source": gin.H{
			"name":    source.Name,
			"url":     source.URL,
			"enabled": source.Settings.Enabled,
		},
	}

	if source.Settings.Enabled {
		if err := h.scheduler.TriggerSync(name); err != nil {
			slog.Error("Error enqueueing sync task", "source", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to enqueue sync task",
				"details": err.Error(),
			})
			return
		}
		response["message"] = "Configuration reloaded and sync task enqueued"
	}

	c.JSON(http.StatusOK, response)
}

func runInfo(run database.Run) gin.H {
	info := gin.H{
		"source":      run.Source,
		"status":      run.Status,
		"started_at":  run.StartedAt,
		"existing":    run.Existing,
		"candidates":  run.Candidates,
		"appended":    run.Appended,
		"window_size": run.WindowSize,
	}
	if run.FinishedAt != nil {
		info["finished_at"] = *run.FinishedAt
		info["duration"] = run.FinishedAt.Sub(run.StartedAt).String()
	}
	if run.Error != "" {
		info["error"] = run.Error
	}
	return info
}
