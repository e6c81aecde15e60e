package pipeline

import "errors"

// Fatal run errors. Record creation failures are never returned; they are counted
// in the run report instead.
var (
	ErrAllocation     = errors.New("run id allocation failed")
	ErrSourceConfig   = errors.New("repository sources unavailable")
	ErrResolveRepos   = errors.New("organization listing failed")
	ErrBuildQuery     = errors.New("query construction failed")
	ErrQueryExecution = errors.New("query execution failed")
	ErrParse          = errors.New("query result parse failed")
	ErrPersistStatus  = errors.New("run status persistence failed")
)
