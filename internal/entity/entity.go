package entity

import (
	"context"
	"fmt"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

type Kind string

const (
	KindSensor       Kind = "sensor"
	KindBinarySensor Kind = "binary_sensor"
	KindNumber       Kind = "number"
)

// Description is the static metadata shared by every entity kind.
type Description struct {
	Key         string
	Name        string
	DeviceClass string
	StateClass  string
	Unit        string
	Icon        string
}

// Source is the coordinator side of an entity: where the snapshot lives and
// how a changed target is published.
type Source interface {
	Pool() model.Pool
	Snapshot() *model.Snapshot
	ApplyUpdate(fn func(*model.Snapshot))
}

// Controller changes targets on the pool controller.
type Controller interface {
	SetTargetPH(ctx context.Context, poolID string, value float64) error
	SetTargetORP(ctx context.Context, poolID string, value int) error
	SetTargetClPPM(ctx context.Context, poolID string, value float64) error
	SetTargetElectrolysis(ctx context.Context, poolID string, value int) error
}

// Point is one observable value bound to a pool.
type Point interface {
	Kind() Kind
	Describe() Description
	UniqueID() string
	DisplayName() string
	Available() bool
	// State is a float64, a bool, or nil when unavailable.
	State() any
}

type base struct {
	kind Kind
	desc Description
	src  Source
}

func (b base) Kind() Kind { return b.kind }
func (b base) Describe() Description { return b.desc }
func (b base) UniqueID() string { return fmt.Sprintf("%s_%s", b.src.Pool().ID, b.desc.Key) }
func (b base) DisplayName() string { return b.src.Pool().Alias + " " + b.desc.Name }
func (b base) snapshot() *model.Snapshot { return b.src.Snapshot() }

// Build binds every declared entity to one pool.
func Build(src Source, ctl Controller) []Point {
	points := make([]Point, 0, len(Sensors)+len(BinarySensors)+len(Numbers))
	for _, d := range Sensors {
		points = append(points, &Sensor{base: base{kind: KindSensor, desc: d.Description, src: src}, value: d.Value})
	}
	for _, d := range BinarySensors {
		points = append(points, &BinarySensor{base: base{kind: KindBinarySensor, desc: d.Description, src: src}, isOn: d.IsOn})
	}
	for _, d := range Numbers {
		points = append(points, &Number{base: base{kind: KindNumber, desc: d.Description, src: src}, nd: d, ctl: ctl})
	}
	return points
}

// Find returns the entity with the given key, or nil.
func Find(points []Point, kind Kind, key string) Point {
	for _, p := range points {
		if p.Kind() == kind && p.Describe().Key == key {
			return p
		}
	}
	return nil
}
