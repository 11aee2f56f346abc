package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mysplit_sync_passes_total",
		Help: "Background sync passes executed.",
	})
	syncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mysplit_sync_errors_total",
		Help: "Sync attempts that left a group dirty.",
	})
	remoteOpErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mysplit_remote_op_errors_total",
		Help: "Explicit background remote operations that failed.",
	})
	suppressedUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mysplit_suppressed_updates_total",
		Help: "Remote snapshots suppressed because the local copy was dirty.",
	})
	dirtyGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mysplit_dirty_groups",
		Help: "Groups with local edits not yet confirmed remotely.",
	})
)
