package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghstats/config"
	"ghstats/models"
	"ghstats/pipeline"
)

type fakeSyncer struct {
	mu       sync.Mutex
	syncs    int
	commands []models.CommandType
}

func (f *fakeSyncer) Sync(ctx context.Context) (*pipeline.RunOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return &pipeline.RunOutcome{RunID: int64(f.syncs), Status: models.RunStatusCompleted}, nil
}

func (f *fakeSyncer) HandleCommand(cmd *models.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd.Command)
	return nil
}

func (f *fakeSyncer) counts() (int, []models.CommandType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs, append([]models.CommandType(nil), f.commands...)
}

type fakeQueue struct {
	mu        sync.Mutex
	pending   []models.Command
	processed []int64
}

func (q *fakeQueue) GetPendingCommands() ([]models.Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out, nil
}

func (q *fakeQueue) MarkCommandProcessed(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processed = append(q.processed, id)
	return nil
}

type fakeTrigger struct {
	mu    sync.Mutex
	fired int
}

func (f *fakeTrigger) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired++
}

func TestScheduler_ProcessesCommands(t *testing.T) {
	syncer := &fakeSyncer{}
	queue := &fakeQueue{pending: []models.Command{
		{ID: 1, Command: models.CmdPause},
		{ID: 2, Command: models.CmdResume},
		{ID: 3, Command: models.CmdSyncNow},
		{ID: 4, Command: models.CmdArchiveNow},
		{ID: 5, Command: "bogus"},
	}}
	archive := &fakeTrigger{}

	s := New(config.SchedulerConfig{}, syncer, queue)
	s.pollInterval = 5 * time.Millisecond
	s.SetWorkers(archive)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.processed) == 5
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	syncs, cmds := syncer.counts()
	assert.Equal(t, 1, syncs)
	assert.Equal(t, []models.CommandType{models.CmdPause, models.CmdResume}, cmds)
	assert.Equal(t, 1, archive.fired)
}

func TestScheduler_IntervalTriggersSync(t *testing.T) {
	syncer := &fakeSyncer{}
	s := New(config.SchedulerConfig{Interval: 5 * time.Millisecond}, syncer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		n, _ := syncer.counts()
		return n >= 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestScheduler_RejectsBadCron(t *testing.T) {
	s := New(config.SchedulerConfig{Cron: "not a cron"}, &fakeSyncer{}, nil)
	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "invalid cron expression")
	s.Stop()
}

func TestTriggerNow(t *testing.T) {
	syncer := &fakeSyncer{}
	s := New(config.SchedulerConfig{}, syncer, nil)

	outcome, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, outcome.Status)
}
