package entity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

var ErrOutOfRange = errors.New("value out of range")

const (
	minPH = 6.0
	maxPH = 8.0

	minORP = 600
	maxORP = 850

	minChlorine = 0.30
	maxChlorine = 3.50
)

type NumberDescription struct {
	Description
	Min, Max, Step float64

	Value func(*model.Snapshot) *float64
	Set   func(ctx context.Context, ctl Controller, poolID string, value float64) error
	Apply func(s *model.Snapshot, value float64)
}

var Numbers = []NumberDescription{
	{
		Description: Description{Key: "target_ph", Name: "Target PH", DeviceClass: "ph"},
		Min:         minPH,
		Max:         maxPH,
		Step:        0.01,
		Value:       func(s *model.Snapshot) *float64 { return s.TargetPH },
		Set: func(ctx context.Context, ctl Controller, poolID string, v float64) error {
			return ctl.SetTargetPH(ctx, poolID, v)
		},
		Apply: func(s *model.Snapshot, v float64) { s.TargetPH = model.Float(v) },
	},
	{
		Description: Description{Key: "target_orp", Name: "Target ORP", DeviceClass: "voltage", Unit: "mV", Icon: "mdi:gauge"},
		Min:         minORP,
		Max:         maxORP,
		Step:        1,
		Value:       func(s *model.Snapshot) *float64 { return s.TargetORP },
		Set: func(ctx context.Context, ctl Controller, poolID string, v float64) error {
			return ctl.SetTargetORP(ctx, poolID, int(v))
		},
		Apply: func(s *model.Snapshot, v float64) { s.TargetORP = model.Float(math.Trunc(v)) },
	},
	{
		Description: Description{Key: "target_chlorine", Name: "Target Chlorine", DeviceClass: "volatile_organic_compounds", Unit: "ppm", Icon: "mdi:gauge"},
		Min:         minChlorine,
		Max:         maxChlorine,
		Step:        0.01,
		Value:       func(s *model.Snapshot) *float64 { return s.TargetClPPM },
		Set: func(ctx context.Context, ctl Controller, poolID string, v float64) error {
			return ctl.SetTargetClPPM(ctx, poolID, v)
		},
		Apply: func(s *model.Snapshot, v float64) { s.TargetClPPM = model.Float(v) },
	},
	{
		Description: Description{Key: "target_production", Name: "Target Production", Unit: "%", Icon: "mdi:gauge"},
		Min:         0,
		Max:         100,
		Step:        1,
		Value:       func(s *model.Snapshot) *float64 { return s.TargetPercentageElectrolysis },
		Set: func(ctx context.Context, ctl Controller, poolID string, v float64) error {
			return ctl.SetTargetElectrolysis(ctx, poolID, int(v))
		},
		Apply: func(s *model.Snapshot, v float64) { s.TargetPercentageElectrolysis = model.Float(math.Trunc(v)) },
	},
}

type Number struct {
	base
	nd  NumberDescription
	ctl Controller
}

func (n *Number) Min() float64 { return n.nd.Min }
func (n *Number) Max() float64 { return n.nd.Max }
func (n *Number) Step() float64 { return n.nd.Step }

func (n *Number) Available() bool {
	snap := n.snapshot()
	return snap != nil && n.nd.Value(snap) != nil
}

func (n *Number) Value() (float64, bool) {
	snap := n.snapshot()
	if snap == nil {
		return 0, false
	}
	v := n.nd.Value(snap)
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (n *Number) State() any {
	if v, ok := n.Value(); ok {
		return v
	}
	return nil
}

// SetValue sends a new target to the controller and, once accepted, publishes
// it to the pool's snapshot.
func (n *Number) SetValue(ctx context.Context, value float64) error {
	if math.IsNaN(value) || value < n.nd.Min || value > n.nd.Max {
		return fmt.Errorf("%s: %v not in [%v, %v]: %w", n.nd.Key, value, n.nd.Min, n.nd.Max, ErrOutOfRange)
	}
	value = snapToStep(value, n.nd.Step)

	pool := n.src.Pool()
	if err := n.nd.Set(ctx, n.ctl, pool.ID, value); err != nil {
		return fmt.Errorf("set %s on pool %s: %w", n.nd.Key, pool.Alias, err)
	}
	n.src.ApplyUpdate(func(s *model.Snapshot) { n.nd.Apply(s, value) })

	log.Info().
		Str("pool", pool.Alias).
		Str("entity", n.nd.Key).
		Float64("value", value).
		Msg("Target updated")
	return nil
}

func snapToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	steps := math.Round(v / step)
	// round again to drop binary noise such as 7.199999999
	return math.Round(steps*step*1e6) / 1e6
}
