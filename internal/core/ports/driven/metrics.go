package driven

// MetricUnit mirrors the destination's unit vocabulary.
type MetricUnit string

const (
	UnitCount        MetricUnit = "Count"
	UnitBytes        MetricUnit = "Bytes"
	UnitSeconds      MetricUnit = "Seconds"
	UnitMilliseconds MetricUnit = "Milliseconds"
	UnitMbps         MetricUnit = "Megabits/Second"
	UnitNone         MetricUnit = "None"
)

// Metric is one datapoint.
type Metric struct {
	Name       string
	Value      float64
	Unit       MetricUnit
	Dimensions map[string]string
}

// MetricsEmitter records operational metrics. Emission is best effort and
// must never fail a run; implementations swallow and log backend errors.
type MetricsEmitter interface {
	Emit(metrics ...Metric)
}
