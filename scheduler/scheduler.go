package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ghstats/config"
	"ghstats/models"
	"ghstats/pipeline"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Syncer runs the pipeline and reacts to control commands.
type Syncer interface {
	Sync(ctx context.Context) (*pipeline.RunOutcome, error)
	HandleCommand(cmd *models.Command) error
}

// CommandQueue is the command table polled by the daemon.
type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

type Scheduler struct {
	cfg      config.SchedulerConfig
	syncer   Syncer
	commands CommandQueue
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	pollInterval  time.Duration
	archiveWorker Triggerable
}

func New(cfg config.SchedulerConfig, syncer Syncer, commands CommandQueue) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		syncer:       syncer,
		commands:     commands,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
		pollInterval: 2 * time.Second,
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(archive Triggerable) {
	s.archiveWorker = archive
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.commands != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pollCommands(ctx)
		}()
	}

	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			s.runSync(ctx, "Scheduled")
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.runSync(ctx, "Scheduled")
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) runSync(ctx context.Context, trigger string) {
	outcome, err := s.syncer.Sync(ctx)
	if err != nil {
		log.Printf("%s run error: %v", trigger, err)
		return
	}
	if outcome != nil {
		log.Printf("%s run %d %s", trigger, outcome.RunID, outcome.Status)
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.commands.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				// mark first so a long sync is not picked up twice
				if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdSyncNow:
		s.runSync(ctx, "Manual")
		return nil
	case models.CmdArchiveNow:
		if s.archiveWorker != nil {
			s.archiveWorker.Trigger()
			log.Println("Archive worker triggered via command")
		}
		return nil
	case models.CmdPause, models.CmdResume:
		return s.syncer.HandleCommand(cmd)
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

func (s *Scheduler) TriggerNow(ctx context.Context) (*pipeline.RunOutcome, error) {
	return s.syncer.Sync(ctx)
}
