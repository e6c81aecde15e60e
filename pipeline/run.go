package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"ghstats/github"
	"ghstats/models"
	"ghstats/throughput"
)

// RunOutcome is what a finished or aborted run leaves behind.
type RunOutcome struct {
	RunID     int64
	Date      string
	Status    models.RunStatus
	Repos     int
	Results   []models.BatchUploadResult
	Report    models.RunStatusReport
	Published bool
}

// Sync executes one run. Every run that gets past allocation ends with exactly
// one final notification; the returned error is the abort reason, if any.
func (o *Orchestrator) Sync(ctx context.Context) (*RunOutcome, error) {
	if o.paused.Load() {
		o.log(nil, models.LogLevelInfo, "Pipeline is paused, skipping run")
		return nil, nil
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	started := o.now()

	run, err := o.allocate(ctx)
	if err != nil {
		o.log(nil, models.LogLevelError, err.Error())
		o.notify(ctx, nil, allocationFailedMessage)
		o.metrics.RunFinished(string(models.RunStatusAborted), o.now().Sub(started))
		return &RunOutcome{Status: models.RunStatusAborted}, err
	}

	o.lastRunID.Store(run.ID)

	outcome := &RunOutcome{RunID: run.ID, Date: run.Date, Status: models.RunStatusRunning}
	journal := &models.JournalRun{
		ID:        run.ID,
		Date:      run.Date,
		StartedAt: started,
		Status:    models.RunStatusRunning,
	}
	o.startJournal(journal)
	o.notify(ctx, &run.ID, startedMessage(run.ID))

	if err := o.execute(ctx, run, outcome); err != nil {
		o.log(&run.ID, models.LogLevelError, err.Error())
		o.notify(ctx, &run.ID, abortedMessage(run.ID, err))
		outcome.Status = models.RunStatusAborted
		o.finish(journal, outcome, err, started)
		return outcome, err
	}

	outcome.Status = models.RunStatusCompleted
	o.finish(journal, outcome, nil, started)
	return outcome, nil
}

func (o *Orchestrator) allocate(ctx context.Context) (*models.RunRecord, error) {
	run, err := o.store.CreateRunRecord(ctx, models.NewRunRecord(o.now()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	if run == nil || run.ID <= 0 {
		return nil, fmt.Errorf("%w: store returned no run id", ErrAllocation)
	}
	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *models.RunRecord, outcome *RunOutcome) error {
	repos, err := o.resolveRepositories(ctx)
	if err != nil {
		return err
	}
	outcome.Repos = len(repos)
	o.log(&run.ID, models.LogLevelInfo, fmt.Sprintf("Resolved %d repositories", len(repos)))

	groups := github.SplitRepos(repos, o.opts.ReposPerBatch)
	queries, err := buildQueries(groups)
	if err != nil {
		return err
	}

	responses, err := o.executeQueries(ctx, run.ID, queries)
	if err != nil {
		return err
	}

	parsed, err := parseResponses(run.ID, groups, responses)
	if err != nil {
		return err
	}

	results, err := o.upload(ctx, parsed)
	if err != nil {
		return err
	}
	outcome.Results = results
	outcome.Report = Aggregate(results)
	o.metrics.RecordsUploaded(outcome.Report.TotalCreatedCount, outcome.Report.TotalFailedCount)
	o.log(&run.ID, models.LogLevelInfo, fmt.Sprintf("Uploaded: %d received, %d created, %d failed",
		outcome.Report.TotalReceived, outcome.Report.TotalCreatedCount, outcome.Report.TotalFailedCount))

	if err := o.persistStatus(ctx, run, outcome.Report); err != nil {
		return err
	}

	result := eventSkipped
	if o.opts.PublishEvents && o.events != nil {
		if err := o.events.Publish(ctx, models.NewRunCompletedEvent(run, o.now())); err != nil {
			o.log(&run.ID, models.LogLevelWarn, fmt.Sprintf("Event publish failed: %v", err))
			result = eventFailed
		} else {
			outcome.Published = true
			result = eventPosted
		}
	}
	o.notify(ctx, &run.ID, completionMessage(result, outcome.Report))
	return nil
}

func (o *Orchestrator) resolveRepositories(ctx context.Context) ([]string, error) {
	sources, err := o.loadSources(o.opts.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceConfig, err)
	}

	perOrg := make([][]string, len(sources.FullOrgs))
	g, gctx := errgroup.WithContext(ctx)
	for i, org := range sources.FullOrgs {
		g.Go(func() error {
			repos, err := o.api.ListOrgRepos(gctx, org)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrResolveRepos, org.OrgName, err)
			}
			perOrg[i] = repos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var repos []string
	for _, list := range perOrg {
		repos = append(repos, list...)
	}
	return append(repos, sources.IndividualRepos...), nil
}

func buildQueries(groups [][]string) ([]string, error) {
	queries := make([]string, len(groups))
	var g errgroup.Group
	for i, group := range groups {
		g.Go(func() error {
			q, err := github.BuildQuery(group)
			if err != nil {
				return fmt.Errorf("%w: group %d: %v", ErrBuildQuery, i, err)
			}
			queries[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return queries, nil
}

// executeQueries runs queries one at a time. A failed query goes to the back of
// the queue after a growing pause, until it has used MaxAttempts.
func (o *Orchestrator) executeQueries(ctx context.Context, runID int64, queries []string) ([]map[string]json.RawMessage, error) {
	responses := make([]map[string]json.RawMessage, len(queries))
	attempts := make([]int, len(queries))
	delays := make([]*backoff.ExponentialBackOff, len(queries))

	pending := make([]int, len(queries))
	for i := range pending {
		pending[i] = i
	}

	for len(pending) > 0 {
		i := pending[0]
		pending = pending[1:]

		data, err := o.api.ExecuteQuery(ctx, queries[i])
		if err == nil {
			o.metrics.QueryAttempt(true)
			responses[i] = data
			continue
		}
		o.metrics.QueryAttempt(false)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryExecution, ctx.Err())
		}

		attempts[i]++
		if attempts[i] >= o.opts.MaxAttempts {
			return nil, fmt.Errorf("%w: batch %d failed %d times: %v", ErrQueryExecution, i, attempts[i], err)
		}

		if delays[i] == nil {
			delays[i] = o.newBackOff()
		}
		delay := delays[i].NextBackOff()
		o.log(&runID, models.LogLevelWarn, fmt.Sprintf("Query batch %d failed (attempt %d), retrying in %s: %v", i, attempts[i], delay, err))
		pending = append(pending, i)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryExecution, err)
		}
	}
	return responses, nil
}

// newBackOff doubles from RetryBase up to RetryMax without jitter.
func (o *Orchestrator) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     o.opts.RetryBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         o.opts.RetryMax,
	}
	b.Reset()
	return b
}

func parseResponses(runID int64, groups [][]string, responses []map[string]json.RawMessage) ([][]models.RepoStatRecord, error) {
	parsed := make([][]models.RepoStatRecord, len(responses))
	var g errgroup.Group
	for i, data := range responses {
		g.Go(func() error {
			records, err := github.ParseResult(data, runID)
			if err != nil {
				return fmt.Errorf("%w: batch %d: %v", ErrParse, i, err)
			}
			if len(records) != len(groups[i]) {
				return fmt.Errorf("%w: batch %d returned %d of %d repositories", ErrParse, i, len(records), len(groups[i]))
			}
			parsed[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (o *Orchestrator) upload(ctx context.Context, parsed [][]models.RepoStatRecord) ([]models.BatchUploadResult, error) {
	uploader := NewUploader(o.store, o.opts.Upload, o.sleep)

	if !o.opts.Upload.Serverless {
		var results []models.BatchUploadResult
		for _, records := range parsed {
			batch, err := uploader.Upload(ctx, records)
			results = append(results, batch...)
			if err != nil {
				return results, err
			}
		}
		return results, nil
	}

	perGroup := make([][]models.BatchUploadResult, len(parsed))
	g, gctx := errgroup.WithContext(ctx)
	for i, records := range parsed {
		g.Go(func() error {
			batch, err := uploader.Upload(gctx, records)
			perGroup[i] = batch
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []models.BatchUploadResult
	for _, batch := range perGroup {
		results = append(results, batch...)
	}
	return results, nil
}

// persistStatus writes the report onto the run record. Provisioned stores get the
// counts first and then the name lists appended in budget-sized chunks.
func (o *Orchestrator) persistStatus(ctx context.Context, run *models.RunRecord, report models.RunStatusReport) error {
	record, err := o.store.GetRunRecord(ctx, run.ID, run.Date)
	if err != nil {
		return fmt.Errorf("%w: read run %d: %v", ErrPersistStatus, run.ID, err)
	}
	if record == nil {
		return fmt.Errorf("%w: run %d not found", ErrPersistStatus, run.ID)
	}

	record.TotalReceived = report.TotalReceived
	record.TotalProcessed = report.TotalProcessed
	record.TotalCreatedCount = report.TotalCreatedCount
	record.TotalFailedCount = report.TotalFailedCount

	if o.opts.Upload.Serverless {
		record.CreatedList = report.CreatedList
		record.FailedList = report.FailedList
		if err := o.store.ReplaceRunRecord(ctx, record); err != nil {
			return fmt.Errorf("%w: replace run %d: %v", ErrPersistStatus, run.ID, err)
		}
		return nil
	}

	record.CreatedList = ""
	record.FailedList = ""
	if err := o.store.ReplaceRunRecord(ctx, record); err != nil {
		return fmt.Errorf("%w: replace run %d: %v", ErrPersistStatus, run.ID, err)
	}

	if err := o.appendList(ctx, record, report.CreatedList, &record.CreatedList); err != nil {
		return err
	}
	return o.appendList(ctx, record, report.FailedList, &record.FailedList)
}

func (o *Orchestrator) appendList(ctx context.Context, record *models.RunRecord, list string, field *string) error {
	if list == "" {
		return nil
	}

	chunks, err := throughput.Partition(strings.Split(list, ","), o.opts.Upload.BudgetBytes, throughput.StringSize)
	if err != nil {
		return fmt.Errorf("%w: partition list: %v", ErrPersistStatus, err)
	}

	for _, chunk := range chunks {
		if err := o.sleep(ctx, o.opts.Upload.Cooldown); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistStatus, err)
		}
		part := strings.Join(chunk, ",")
		if *field == "" {
			*field = part
		} else {
			*field += "," + part
		}
		if err := o.store.ReplaceRunRecord(ctx, record); err != nil {
			return fmt.Errorf("%w: append to run %d: %v", ErrPersistStatus, record.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, runID *int64, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, message); err != nil {
		o.log(runID, models.LogLevelWarn, fmt.Sprintf("Notification failed: %v", err))
	}
}

func (o *Orchestrator) finish(journal *models.JournalRun, outcome *RunOutcome, runErr error, started time.Time) {
	finished := o.now()
	journal.FinishedAt = &finished
	journal.Status = outcome.Status
	journal.Received = outcome.Report.TotalReceived
	journal.Created = outcome.Report.TotalCreatedCount
	journal.Failed = outcome.Report.TotalFailedCount
	if runErr != nil {
		journal.Error = runErr.Error()
	}
	if report, err := json.Marshal(outcome.Report); err == nil {
		journal.Report = report
	}
	o.finishJournal(journal)

	o.metrics.RunFinished(string(outcome.Status), finished.Sub(started))
	if runErr == nil {
		o.log(&outcome.RunID, models.LogLevelInfo, fmt.Sprintf("Completed: %d repositories, %d created, %d failed",
			outcome.Repos, outcome.Report.TotalCreatedCount, outcome.Report.TotalFailedCount))
	}
}
