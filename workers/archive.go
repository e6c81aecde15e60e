package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"ghstats/models"
)

// RunArchive is the journal view the archive worker needs.
type RunArchive interface {
	GetUnarchivedRuns(limit int) ([]models.JournalRun, error)
	GetRunLogs(runID int64) ([]models.RunLog, error)
	MarkRunArchived(id int64) error
}

// Uploader writes one object to S3-compatible storage
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// ArchiveWorker copies finished run reports and their logs to object storage.
type ArchiveWorker struct {
	store     RunArchive
	uploader  Uploader
	triggerCh chan struct{}
	logFunc   LogFunc
}

func NewArchiveWorker(store RunArchive, uploader Uploader) *ArchiveWorker {
	if uploader == nil {
		uploader = NewNoOpUploader()
	}
	return &ArchiveWorker{
		store:     store,
		uploader:  uploader,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *ArchiveWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *ArchiveWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type runArchive struct {
	Run    models.JournalRun      `json:"run"`
	Report json.RawMessage        `json:"report,omitempty"`
	Logs   []models.RunLog        `json:"logs"`
	Meta   map[string]interface{} `json:"meta"`
}

// ArchiveKey is the object key of a run's archive.
func ArchiveKey(run *models.JournalRun) string {
	return fmt.Sprintf("reports/%s/%d.json", run.Date, run.ID)
}

// Archive uploads one run and returns its object key.
func (w *ArchiveWorker) Archive(ctx context.Context, run *models.JournalRun) (string, error) {
	logs, err := w.store.GetRunLogs(run.ID)
	if err != nil {
		return "", fmt.Errorf("load logs: %w", err)
	}

	doc := runArchive{
		Run:  *run,
		Logs: logs,
		Meta: map[string]interface{}{"archived_at": time.Now().UTC()},
	}
	if json.Valid(run.Report) {
		doc.Report = run.Report
	}
	doc.Run.Report = nil

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}

	key := ArchiveKey(run)
	if err := w.uploader.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := w.store.MarkRunArchived(run.ID); err != nil {
		return "", fmt.Errorf("mark archived: %w", err)
	}
	return key, nil
}

// Run starts the archive worker loop
func (w *ArchiveWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Archive worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Archive worker triggered manually")
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *ArchiveWorker) processBatch(ctx context.Context, batchSize int) (archived, failed int) {
	runs, err := w.store.GetUnarchivedRuns(batchSize)
	if err != nil {
		log.Printf("Archive worker: query error: %v", err)
		return 0, 0
	}

	for i := range runs {
		run := &runs[i]
		key, err := w.Archive(ctx, run)
		if err != nil {
			log.Printf("Archive worker: run %d failed: %v", run.ID, err)
			w.logFunc(&run.ID, models.LogLevelWarn, fmt.Sprintf("Archive failed: %v", err))
			failed++
			continue
		}
		archived++
		log.Printf("Archive worker: run %d -> %s", run.ID, key)
	}

	if archived > 0 || failed > 0 {
		log.Printf("Archive worker: archived %d, failed %d", archived, failed)
	}
	return archived, failed
}

// NoOpUploader drains and discards uploads when no bucket is configured.
type NoOpUploader struct{}

func (u *NoOpUploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := io.Copy(io.Discard, data)
	return err
}

func NewNoOpUploader() *NoOpUploader {
	return &NoOpUploader{}
}
