package model

import "time"

type Pool struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

// Snapshot is the last known state of one pool. Nil fields were not reported
// by the controller.
type Snapshot struct {
	CurrentPH              *float64 `json:"current_ph"`
	Temperature            *float64 `json:"temperature"`
	SaltConcentration      *float64 `json:"salt_concentration"`
	CurrentORP             *float64 `json:"current_orp"`
	CurrentClPPM           *float64 `json:"current_clppm"`
	PercentageElectrolysis *float64 `json:"percentage_electrolysis"`

	TargetPH                     *float64 `json:"target_ph"`
	TargetORP                    *float64 `json:"target_orp"`
	TargetClPPM                  *float64 `json:"target_clppm"`
	TargetPercentageElectrolysis *float64 `json:"target_percentage_electrolysis"`

	WaterflowProblem *bool `json:"waterflow_problem"`
	BinaryInput1     *bool `json:"binary_input_1"`
	BinaryInput2     *bool `json:"binary_input_2"`
	BinaryInput3     *bool `json:"binary_input_3"`
	BinaryInput4     *bool `json:"binary_input_4"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Clone returns a deep copy so callers can mutate it before publishing.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentPH = cloneFloat(s.CurrentPH)
	c.Temperature = cloneFloat(s.Temperature)
	c.SaltConcentration = cloneFloat(s.SaltConcentration)
	c.CurrentORP = cloneFloat(s.CurrentORP)
	c.CurrentClPPM = cloneFloat(s.CurrentClPPM)
	c.PercentageElectrolysis = cloneFloat(s.PercentageElectrolysis)
	c.TargetPH = cloneFloat(s.TargetPH)
	c.TargetORP = cloneFloat(s.TargetORP)
	c.TargetClPPM = cloneFloat(s.TargetClPPM)
	c.TargetPercentageElectrolysis = cloneFloat(s.TargetPercentageElectrolysis)
	c.WaterflowProblem = cloneBool(s.WaterflowProblem)
	c.BinaryInput1 = cloneBool(s.BinaryInput1)
	c.BinaryInput2 = cloneBool(s.BinaryInput2)
	c.BinaryInput3 = cloneBool(s.BinaryInput3)
	c.BinaryInput4 = cloneBool(s.BinaryInput4)
	return &c
}

// ConfigEntry is the persisted account for one bridge instance.
type ConfigEntry struct {
	ID             string    `json:"id"`
	Token          string    `json:"-"`
	Email          string    `json:"email"`
	Password       string    `json:"-"`
	ReauthRequired bool      `json:"reauth_required"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Reading struct {
	PoolID    string
	FetchedAt time.Time
	Snapshot  Snapshot
}

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	return Bool(*v)
}
