package entity

import "github.com/thatsimonsguy/poolstation-bridge/internal/model"

type BinarySensorDescription struct {
	Description
	IsOn func(*model.Snapshot) *bool
}

var BinarySensors = []BinarySensorDescription{
	{
		Description: Description{Key: "water_flow", Name: "Water Flow", DeviceClass: "problem"},
		IsOn:        func(s *model.Snapshot) *bool { return s.WaterflowProblem },
	},
	{
		Description: Description{Key: "binary_input_1", Name: "Digital input 1"},
		IsOn:        func(s *model.Snapshot) *bool { return s.BinaryInput1 },
	},
	{
		Description: Description{Key: "binary_input_2", Name: "Digital input 2"},
		IsOn:        func(s *model.Snapshot) *bool { return s.BinaryInput2 },
	},
	{
		Description: Description{Key: "binary_input_3", Name: "Digital input 3"},
		IsOn:        func(s *model.Snapshot) *bool { return s.BinaryInput3 },
	},
	{
		Description: Description{Key: "binary_input_4", Name: "Digital input 4"},
		IsOn:        func(s *model.Snapshot) *bool { return s.BinaryInput4 },
	},
}

type BinarySensor struct {
	base
	isOn func(*model.Snapshot) *bool
}

func (b *BinarySensor) Available() bool {
	snap := b.snapshot()
	return snap != nil && b.isOn(snap) != nil
}

func (b *BinarySensor) IsOn() (on bool, ok bool) {
	snap := b.snapshot()
	if snap == nil {
		return false, false
	}
	v := b.isOn(snap)
	if v == nil {
		return false, false
	}
	return *v, true
}

func (b *BinarySensor) State() any {
	if on, ok := b.IsOn(); ok {
		return on
	}
	return nil
}
