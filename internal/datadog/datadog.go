package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/poolstation-bridge/internal/entity"
	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

type gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
}

// Reporter pushes every published pool snapshot to DogStatsD.
type Reporter struct {
	client gauger
}

func New(addr, namespace string, tags []string) (*Reporter, error) {
	client, err := statsd.New(addr)
	if err != nil {
		return nil, err
	}
	client.Namespace = namespace
	client.Tags = tags

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")
	return &Reporter{client: client}, nil
}

func (r *Reporter) Gauge(name string, value float64, tags ...string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

// Record emits one gauge per reported field. It has the coordinator listener
// signature.
func (r *Reporter) Record(pool model.Pool, snap *model.Snapshot) {
	if snap == nil {
		return
	}
	tags := []string{"pool_id:" + pool.ID, "pool:" + pool.Alias}

	for _, d := range entity.Sensors {
		if v := d.Value(snap); v != nil {
			r.Gauge("pool."+d.Key, *v, tags...)
		}
	}
	for _, d := range entity.Numbers {
		if v := d.Value(snap); v != nil {
			r.Gauge("pool."+d.Key, *v, tags...)
		}
	}
	for _, d := range entity.BinarySensors {
		if v := d.IsOn(snap); v != nil {
			r.Gauge("pool."+d.Key, boolToFloat(*v), tags...)
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
