package workers

import "ghstats/models"

// LogFunc journals a worker log line, optionally against a run.
type LogFunc func(runID *int64, level models.LogLevel, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(runID *int64, level models.LogLevel, message string) {}
