package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/rss-ledger/app/database"
	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/tasks"
)

type Handler struct {
	configCache *feed.ConfigCache
	runs        database.RunRepository
	scheduler   tasks.TaskSchedulerInterface
	gatherer    prometheus.Gatherer
}
