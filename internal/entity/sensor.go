package entity

import "github.com/thatsimonsguy/poolstation-bridge/internal/model"

type SensorDescription struct {
	Description
	Value func(*model.Snapshot) *float64
}

var Sensors = []SensorDescription{
	{
		Description: Description{Key: "pH", Name: "pH", DeviceClass: "ph", StateClass: "measurement"},
		Value:       func(s *model.Snapshot) *float64 { return s.CurrentPH },
	},
	{
		Description: Description{Key: "temperature", Name: "Temperature", StateClass: "measurement", Unit: "°C", Icon: "mdi:coolant-temperature"},
		Value:       func(s *model.Snapshot) *float64 { return s.Temperature },
	},
	{
		Description: Description{Key: "salt_concentration", Name: "Salt Concentration", StateClass: "measurement", Unit: "gr/l", Icon: "mdi:shaker"},
		Value:       func(s *model.Snapshot) *float64 { return s.SaltConcentration },
	},
	{
		Description: Description{Key: "percentage_electrolysis", Name: "Electrolysis", StateClass: "measurement", Unit: "%", Icon: "mdi:water-percent"},
		Value:       func(s *model.Snapshot) *float64 { return s.PercentageElectrolysis },
	},
	{
		Description: Description{Key: "current_orp", Name: "ORP", DeviceClass: "voltage", StateClass: "measurement", Unit: "mV", Icon: "mdi:atom"},
		Value:       func(s *model.Snapshot) *float64 { return s.CurrentORP },
	},
	{
		Description: Description{Key: "free_chlorine", Name: "Chlorine", DeviceClass: "volatile_organic_compounds", StateClass: "measurement", Unit: "ppm", Icon: "mdi:cup-water"},
		Value:       func(s *model.Snapshot) *float64 { return s.CurrentClPPM },
	},
}

type Sensor struct {
	base
	value func(*model.Snapshot) *float64
}

func (s *Sensor) Available() bool {
	snap := s.snapshot()
	return snap != nil && s.value(snap) != nil
}

// Value returns the reading and whether it is present.
func (s *Sensor) Value() (float64, bool) {
	snap := s.snapshot()
	if snap == nil {
		return 0, false
	}
	v := s.value(snap)
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (s *Sensor) State() any {
	if v, ok := s.Value(); ok {
		return v
	}
	return nil
}
