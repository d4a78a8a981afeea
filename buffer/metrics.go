package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ferrodb_buffer_pool_hits_total",
		Help: "Pin requests satisfied by an already resident block.",
	})
	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ferrodb_buffer_pool_misses_total",
		Help: "Pin requests that had to load the block into a slot.",
	})
	poolEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ferrodb_buffer_pool_evictions_total",
		Help: "Victim slots recycled by the G-Clock scan.",
	})
	poolExhaustions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ferrodb_buffer_pool_exhaustions_total",
		Help: "Pin requests rejected because no victim was available.",
	})
	backupSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ferrodb_buffer_backup_snapshots_total",
		Help: "Pre-modification page snapshots written to the backup store.",
	})
	unpinnedSlots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ferrodb_buffer_pool_unpinned_slots",
		Help: "Slots with no active pins.",
	})
)
