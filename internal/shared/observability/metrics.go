package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upgradeimpact_parsing_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upgradeimpact_analysis_seconds",
		Help:    "Time spent on high-level analysis tasks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	FilesResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upgradeimpact_files_resolved_total",
		Help: "Total number of source files passed through the symbol resolver.",
	})

	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upgradeimpact_parse_failures_total",
		Help: "Total number of source files skipped because they failed to parse.",
	})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upgradeimpact_cache_lookups_total",
		Help: "Disk cache lookups by kind and result.",
	}, []string{"kind", "result"})

	PyPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upgradeimpact_pypi_requests_total",
		Help: "Requests sent to the package index by HTTP status code.",
	}, []string{"code"})

	RiskScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upgradeimpact_risk_score",
		Help: "Most recent total risk score per package.",
	}, []string{"package"})

	DependenciesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upgradeimpact_dependencies_skipped_total",
		Help: "Dependencies skipped during analysis by reason.",
	}, []string{"reason"})

	PolicyViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upgradeimpact_policy_violations_total",
		Help: "Policy violations raised by policy name.",
	}, []string{"policy"})
)
