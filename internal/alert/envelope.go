package alert

import "time"

// Envelope is the compact JSON payload every channel dispatch sends (spec
// §6): id, triggered_at, data_source, metric_name, observed_value,
// baseline_value, threshold, severity, message.
type Envelope struct {
	ID              string    `json:"id"`
	TriggeredAt     time.Time `json:"triggered_at"`
	DataSource      string    `json:"data_source"`
	MetricName      string    `json:"metric_name"`
	ObservedValue   float64   `json:"observed_value"`
	BaselineValue   float64   `json:"baseline_value"`
	Threshold       float64   `json:"threshold"`
	Severity        string    `json:"severity"`
	Message         string    `json:"message"`
}
