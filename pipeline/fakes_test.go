package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"ghstats/github"
	"ghstats/models"
)

var repoPattern = regexp.MustCompile(`repository\(owner: "([^"]+)", name: "([^"]+)"\)`)

// fakeAPI answers queries by echoing the requested repositories back as results.
type fakeAPI struct {
	mu       sync.Mutex
	orgs     map[string][]string
	listErr  error
	failures map[string]int // first repo of a query -> remaining failures
	queries  []string
	calls    int
	omitLast bool
}

// ListOrgRepos applies the organization's exclusions, as the real lister does.
func (f *fakeAPI) ListOrgRepos(ctx context.Context, org models.OrgSource) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return org.Filter(f.orgs[org.OrgName]), nil
}

func (f *fakeAPI) ExecuteQuery(ctx context.Context, query string) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)

	matches := repoPattern.FindAllStringSubmatch(query, -1)
	key := matches[0][1] + "/" + matches[0][2]
	if f.failures[key] > 0 {
		f.failures[key]--
		return nil, fmt.Errorf("%w: status 502", github.ErrQueryFailed)
	}

	if f.omitLast {
		matches = matches[:len(matches)-1]
	}

	data := make(map[string]json.RawMessage, len(matches))
	for i, m := range matches {
		raw, _ := json.Marshal(map[string]interface{}{
			"nameWithOwner": m[1] + "/" + m[2],
			"isArchived":    false,
			"isTemplate":    false,
			"updatedAt":     "2026-10-01T00:00:00Z",
			"Issues":        map[string]int{"totalCount": 3},
			"openIssues":    map[string]int{"totalCount": 1},
			"closedIssues":  map[string]int{"totalCount": 2},
			"PRs":           map[string]int{"totalCount": 4},
			"openPRs":       map[string]int{"totalCount": 1},
			"closedPRs":     map[string]int{"totalCount": 1},
			"mergedPRs":     map[string]int{"totalCount": 2},
			"stars":         map[string]int{"totalCount": 9},
		})
		data[github.Alias(i)] = raw
	}
	return data, nil
}

type fakeStore struct {
	mu         sync.Mutex
	allocErr   error
	allocZero  bool
	failCreate map[string]bool // by repo
	created    []models.RepoStatRecord
	runs       map[int64]models.RunRecord
	replaced   []models.RunRecord
	replaceErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{failCreate: map[string]bool{}, runs: map[int64]models.RunRecord{}}
}

func (s *fakeStore) CreateRepoStat(ctx context.Context, record *models.RepoStatRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate[record.Repo] {
		return "", errors.New("conflict")
	}
	s.created = append(s.created, *record)
	return record.Repo, nil
}

func (s *fakeStore) CreateRunRecord(ctx context.Context, run *models.RunRecord) (*models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocErr != nil {
		return nil, s.allocErr
	}
	if s.allocZero {
		return &models.RunRecord{}, nil
	}
	s.runs[run.ID] = *run
	stored := *run
	return &stored, nil
}

func (s *fakeStore) GetRunRecord(ctx context.Context, id int64, date string) (*models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Date != date {
		return nil, nil
	}
	return &run, nil
}

func (s *fakeStore) ReplaceRunRecord(ctx context.Context, run *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.runs[run.ID] = *run
	s.replaced = append(s.replaced, *run)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, html string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, html)
	return n.err
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

type fakePublisher struct {
	events []models.RunEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event models.RunEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type fakeJournal struct {
	mu       sync.Mutex
	started  []models.JournalRun
	finished []models.JournalRun
	logs     []string
}

func (j *fakeJournal) StartRun(run *models.JournalRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, *run)
	return nil
}

func (j *fakeJournal) FinishRun(run *models.JournalRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, *run)
	return nil
}

func (j *fakeJournal) Log(runID *int64, level models.LogLevel, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, string(level)+": "+message)
	return nil
}

func (j *fakeJournal) GetRun(id int64) (*models.JournalRun, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.finished) - 1; i >= 0; i-- {
		if j.finished[i].ID == id {
			run := j.finished[i]
			return &run, nil
		}
	}
	return nil, nil
}

// recordingSleep captures requested pauses without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}
