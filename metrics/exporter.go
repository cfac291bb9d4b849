// Package metrics is the Prometheus-export collaborator spec.md §1 names as
// deliberately out of core scope, carried here as ambient plumbing per the
// project's "carry an ambient stack regardless of non-goals" rule: it reads
// a live snapshot off the device pool and metadata store at scrape time
// rather than keeping its own counters, since the core components never log
// through a metrics sink directly (spec.md §9's dynamic-dispatch note keeps
// collaborators decoupled from the core).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
)

var (
	deviceCapacityDesc = prometheus.NewDesc(
		"redfs_device_capacity_bytes", "Configured capacity of a device.",
		[]string{"uid", "kind", "tier"}, nil)
	deviceUsedDesc = prometheus.NewDesc(
		"redfs_device_used_bytes", "Bytes currently occupied by fragments on a device.",
		[]string{"uid", "kind", "tier"}, nil)
	deviceHealthyDesc = prometheus.NewDesc(
		"redfs_device_healthy", "1 if the device's health is \"healthy\", 0 otherwise.",
		[]string{"uid", "health"}, nil)
	extentCountDesc = prometheus.NewDesc(
		"redfs_extent_count", "Number of extent records in the pool.", nil, nil)
	inodeCountDesc = prometheus.NewDesc(
		"redfs_inode_count", "Number of inode records in the pool.", nil, nil)
	rootVersionDesc = prometheus.NewDesc(
		"redfs_root_version", "Currently committed metadata root version.", nil, nil)
)

// Exporter implements prometheus.Collector over a live pool and store,
// grounded on the teacher's dependency set naming client_golang for exactly
// this role.
type Exporter struct {
	pool  *device.Pool
	store *metadata.Store
}

func NewExporter(pool *device.Pool, store *metadata.Store) *Exporter {
	return &Exporter{pool: pool, store: store}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- deviceCapacityDesc
	ch <- deviceUsedDesc
	ch <- deviceHealthyDesc
	ch <- extentCountDesc
	ch <- inodeCountDesc
	ch <- rootVersionDesc
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	available, disabled := e.pool.Get()
	for _, h := range append(append([]device.Handle{}, available...), disabled...) {
		ch <- prometheus.MustNewConstMetric(deviceCapacityDesc, prometheus.GaugeValue,
			float64(h.CapacityBytes()), h.UID(), string(h.Kind()), string(h.Tier()))
		ch <- prometheus.MustNewConstMetric(deviceUsedDesc, prometheus.GaugeValue,
			float64(h.UsedBytes()), h.UID(), string(h.Kind()), string(h.Tier()))
		healthy := 0.0
		if h.Health() == device.HealthHealthy {
			healthy = 1.0
		}
		ch <- prometheus.MustNewConstMetric(deviceHealthyDesc, prometheus.GaugeValue,
			healthy, h.UID(), string(h.Health()))
	}

	if uids, err := e.store.ListExtentUIDs(); err == nil {
		ch <- prometheus.MustNewConstMetric(extentCountDesc, prometheus.GaugeValue, float64(len(uids)))
	}

	if root, err := e.store.CurrentRoot(); err == nil {
		ch <- prometheus.MustNewConstMetric(inodeCountDesc, prometheus.GaugeValue, float64(root.InodeCount))
		ch <- prometheus.MustNewConstMetric(rootVersionDesc, prometheus.GaugeValue, float64(root.Version))
	}
}
