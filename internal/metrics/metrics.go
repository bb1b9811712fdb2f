package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thatsimonsguy/poolstation-bridge/internal/coordinator"
	"github.com/thatsimonsguy/poolstation-bridge/internal/entity"
	"github.com/thatsimonsguy/poolstation-bridge/internal/integration"
)

const namespace = "poolstation"

var (
	entityValueDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "entity_value"),
		"Current value of a pool entity. Binary sensors report 1 when on.",
		[]string{"pool_id", "pool", "kind", "entity", "unit"}, nil,
	)
	authRetriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "auth_retries_remaining"),
		"Authentication errors the pool coordinator will still absorb",
		[]string{"pool_id", "pool"}, nil,
	)
	escalatedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "reauth_required"),
		"1 if the pool stopped polling until credentials are refreshed",
		[]string{"pool_id", "pool"}, nil,
	)
	lastSuccessDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "last_update_success"),
		"1 if the last refresh did not fail",
		[]string{"pool_id", "pool"}, nil,
	)
	lastUpdateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "last_update_timestamp_seconds"),
		"Unix timestamp of the last successful refresh",
		[]string{"pool_id", "pool"}, nil,
	)
)

type PoolLister interface {
	Pools() []*integration.Pool
}

// Collector reads pool state at scrape time so values are never stale.
type Collector struct {
	pools PoolLister
}

func NewCollector(pools PoolLister) *Collector {
	return &Collector{pools: pools}
}

func NewRegistry(pools PoolLister) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(pools))
	return registry
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- entityValueDesc
	ch <- authRetriesDesc
	ch <- escalatedDesc
	ch <- lastSuccessDesc
	ch <- lastUpdateDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.pools.Pools() {
		id, alias := p.Info.ID, p.Info.Alias
		coord := p.Coordinator

		ch <- prometheus.MustNewConstMetric(authRetriesDesc, prometheus.GaugeValue, float64(coord.Budget()), id, alias)
		ch <- prometheus.MustNewConstMetric(escalatedDesc, prometheus.GaugeValue, boolValue(coord.State() == coordinator.StateEscalated), id, alias)
		ch <- prometheus.MustNewConstMetric(lastSuccessDesc, prometheus.GaugeValue, boolValue(coord.LastUpdateSuccess()), id, alias)
		if t := coord.LastUpdate(); !t.IsZero() {
			ch <- prometheus.MustNewConstMetric(lastUpdateDesc, prometheus.GaugeValue, float64(t.Unix()), id, alias)
		}

		for _, pt := range p.Points {
			v, ok := pointValue(pt)
			if !ok {
				continue
			}
			d := pt.Describe()
			ch <- prometheus.MustNewConstMetric(entityValueDesc, prometheus.GaugeValue, v, id, alias, string(pt.Kind()), d.Key, d.Unit)
		}
	}
}

func pointValue(pt entity.Point) (float64, bool) {
	switch s := pt.State().(type) {
	case float64:
		return s, true
	case bool:
		return boolValue(s), true
	default:
		return 0, false
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
