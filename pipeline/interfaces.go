package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"ghstats/models"
)

// HostingAPI is the source-control host. ExecuteQuery must not be called concurrently.
type HostingAPI interface {
	ListOrgRepos(ctx context.Context, org models.OrgSource) ([]string, error)
	ExecuteQuery(ctx context.Context, query string) (map[string]json.RawMessage, error)
}

// DocumentStore persists repository snapshots and run-info documents.
type DocumentStore interface {
	// CreateRepoStat returns the stored record's repo field.
	CreateRepoStat(ctx context.Context, record *models.RepoStatRecord) (string, error)
	CreateRunRecord(ctx context.Context, run *models.RunRecord) (*models.RunRecord, error)
	GetRunRecord(ctx context.Context, id int64, date string) (*models.RunRecord, error)
	ReplaceRunRecord(ctx context.Context, run *models.RunRecord) error
}

// Journal keeps the operational history of runs. Journal errors never fail a run.
type Journal interface {
	StartRun(run *models.JournalRun) error
	FinishRun(run *models.JournalRun) error
	Log(runID *int64, level models.LogLevel, message string) error
	GetRun(id int64) (*models.JournalRun, error)
}

type Notifier interface {
	Notify(ctx context.Context, html string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.RunEvent) error
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
