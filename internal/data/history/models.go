package history

import "time"

const SchemaVersion = 1

// Run is one stored risk assessment of a dependency upgrade.
type Run struct {
	RunID           string    `json:"run_id"`
	SchemaVersion   int       `json:"schema_version"`
	Timestamp       time.Time `json:"timestamp"`
	CommitHash      string    `json:"commit_hash,omitempty"`
	CommitTimestamp time.Time `json:"commit_timestamp,omitempty"`
	Package         string    `json:"package"`
	Current         string    `json:"current_version"`
	Target          string    `json:"target_version"`
	Total           float64   `json:"total_score"`
	Severity        string    `json:"severity"`
	Semver          float64   `json:"semver_score"`
	Usage           float64   `json:"usage_score"`
	Changelog       float64   `json:"changelog_score"`
	Coverage        string    `json:"coverage"`
	ChangeCount     int       `json:"change_count"`
	UsageCount      int       `json:"usage_count"`
}

type TrendPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	CommitHash  string    `json:"commit_hash,omitempty"`
	Target      string    `json:"target_version"`
	Total       float64   `json:"total_score"`
	Severity    string    `json:"severity"`
	UsageCount  int       `json:"usage_count"`
	DeltaTotal  float64   `json:"delta_total"`
	DeltaUsage  int       `json:"delta_usage"`
	AvgTotal    float64   `json:"avg_total"`
	WindowHours float64   `json:"window_hours"`
}

type TrendReport struct {
	SchemaVersion int          `json:"schema_version"`
	Package       string       `json:"package"`
	Since         time.Time    `json:"since"`
	Until         time.Time    `json:"until"`
	Window        string       `json:"window"`
	RunCount      int          `json:"run_count"`
	Points        []TrendPoint `json:"points"`
}
