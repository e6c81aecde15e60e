// Package pipeline runs one repository statistics collection end to end:
// allocate a run, resolve repositories, query, parse, upload, report and notify.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"ghstats/config"
	"ghstats/metrics"
	"ghstats/models"
)

var ErrRunInProgress = errors.New("a run is already in progress")

type Options struct {
	SourcesFile   string
	ReposPerBatch int
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
	Upload        UploadMode
	PublishEvents bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SourcesFile:   cfg.SourcesFile,
		ReposPerBatch: cfg.Query.ReposPerBatch,
		MaxAttempts:   cfg.Query.MaxAttempts,
		RetryBase:     cfg.Query.RetryBase,
		RetryMax:      cfg.Query.RetryMax,
		Upload: UploadMode{
			Serverless:  cfg.Store.ServerlessMode,
			BudgetBytes: cfg.Store.BudgetBytes(),
			Cooldown:    cfg.Store.Cooldown,
		},
		PublishEvents: cfg.Events.Publish,
	}
}

type Orchestrator struct {
	opts     Options
	api      HostingAPI
	store    DocumentStore
	notifier Notifier

	journal Journal
	events  EventPublisher
	metrics *metrics.Metrics

	loadSources func(path string) (*models.Sources, error)
	sleep       SleepFunc
	now         func() time.Time

	running   atomic.Bool
	paused    atomic.Bool
	lastRunID atomic.Int64
}

func NewOrchestrator(opts Options, api HostingAPI, store DocumentStore, notifier Notifier) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		opts:        opts,
		api:         api,
		store:       store,
		notifier:    notifier,
		loadSources: config.LoadSources,
		sleep:       Sleep,
		now:         time.Now,
	}
}

// SetJournal records run history and log lines in the operational store.
func (o *Orchestrator) SetJournal(j Journal) {
	o.journal = j
}

// SetEventPublisher is used only when event publishing is enabled.
func (o *Orchestrator) SetEventPublisher(p EventPublisher) {
	o.events = p
}

func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

func (o *Orchestrator) HandleCommand(cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdPause:
		o.paused.Store(true)
		log.Println("Pipeline paused")
	case models.CmdResume:
		o.paused.Store(false)
		log.Println("Pipeline resumed")
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

// MarshalStatus reports the pause and running flags, plus the journal entry of
// the most recent run once one has been allocated.
func (o *Orchestrator) MarshalStatus() ([]byte, error) {
	status := map[string]interface{}{
		"paused":  o.paused.Load(),
		"running": o.running.Load(),
	}
	if id := o.lastRunID.Load(); id > 0 && o.journal != nil {
		run, err := o.journal.GetRun(id)
		if err != nil {
			return nil, fmt.Errorf("load run %d: %w", id, err)
		}
		if run != nil {
			status["last_run"] = run
		}
	}
	return json.Marshal(status)
}

func (o *Orchestrator) log(runID *int64, level models.LogLevel, message string) {
	if runID != nil {
		log.Printf("[%s] run %d: %s", level, *runID, message)
	} else {
		log.Printf("[%s] %s", level, message)
	}
	if o.journal != nil {
		if err := o.journal.Log(runID, level, message); err != nil {
			log.Printf("Pipeline: journal log failed: %v", err)
		}
	}
}

func (o *Orchestrator) startJournal(run *models.JournalRun) {
	if o.journal == nil {
		return
	}
	if err := o.journal.StartRun(run); err != nil {
		log.Printf("Pipeline: journal start failed: %v", err)
	}
}

func (o *Orchestrator) finishJournal(run *models.JournalRun) {
	if o.journal == nil {
		return
	}
	if err := o.journal.FinishRun(run); err != nil {
		log.Printf("Pipeline: journal finish failed: %v", err)
	}
}
