package trajectory

// FilterParams bounds the fix filter. Distances are meters, speeds km/h
// and durations seconds.
type FilterParams struct {
	MaxSpeed      float64 `yaml:"max_speed"`
	MaxElevChange float64 `yaml:"max_d_elev"`
	MaxDistance   float64 `yaml:"max_dist"`
	MinDistance   float64 `yaml:"min_dist"`
	MaxSignalLoss float64 `yaml:"max_sloss"`
	RemoveLone    bool    `yaml:"rm_lone"`
	RemoveSparse  bool    `yaml:"rm_sparse"`
	MinRunSpan    float64 `yaml:"min_run_span"`
}

// TripParams bounds state classification and trip validation. MinDistance is
// the displacement over the Lookback interval that marks a fix as moving.
type TripParams struct {
	MinDistance float64 `yaml:"min_dist"`
	MinLength   float64 `yaml:"min_length"`
	Radius      float64 `yaml:"radius"`
	MinDuration float64 `yaml:"min_dur"`
	MinPause    float64 `yaml:"min_pause"`
	MaxPause    float64 `yaml:"max_pause"`
	MinAvgSpeed float64 `yaml:"min_avg_speed"`
	Lookback    float64 `yaml:"lookback"`
}

// LocationParams bounds visit detection and location merging
type LocationParams struct {
	IncludePause bool    `yaml:"pause"`
	Radius       float64 `yaml:"radius"`
	MinTime      float64 `yaml:"min_time"`
}

// SpeedCutoff is the (mean, robust max) speed ceiling for one travel mode
type SpeedCutoff struct {
	Mode    Mode    `yaml:"mode"`
	MeanKMH float64 `yaml:"mean"`
	MaxKMH  float64 `yaml:"max"`
}

// Params is the full threshold bundle shared read-only by every analysis
type Params struct {
	Filter   FilterParams   `yaml:"invalid_fixes"`
	Trip     TripParams     `yaml:"trip"`
	Location LocationParams `yaml:"location"`
	Speed    []SpeedCutoff  `yaml:"speed"`
}

// DefaultParams returns the study protocol thresholds
func DefaultParams() Params {
	return Params{
		Filter: FilterParams{
			MaxSpeed:      130,
			MaxElevChange: 125,
			MaxDistance:   5000,
			MinDistance:   1,
			MaxSignalLoss: 600,
			RemoveLone:    true,
			RemoveSparse:  true,
			MinRunSpan:    180,
		},
		Trip: TripParams{
			MinDistance: 10,
			MinLength:   100,
			Radius:      30,
			MinDuration: 180,
			MinPause:    180,
			MaxPause:    300,
			MinAvgSpeed: 1.5,
			Lookback:    60,
		},
		Location: LocationParams{
			IncludePause: true,
			Radius:       30,
			MinTime:      300,
		},
		Speed: []SpeedCutoff{
			{Mode: ModeWalk, MeanKMH: 10, MaxKMH: 15},
			{Mode: ModeBike, MeanKMH: 25, MaxKMH: 35},
			{Mode: ModeVehicle, MeanKMH: 200, MaxKMH: 200},
		},
	}
}
