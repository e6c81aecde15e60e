package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ghstats/models"
	"ghstats/throughput"
)

// UploadMode selects how records reach the document store.
type UploadMode struct {
	Serverless  bool
	BudgetBytes int
	Cooldown    time.Duration
}

// Uploader creates RepoStatRecords one by one and classifies each outcome.
// In provisioned mode it paces every batch after the first by Cooldown, across
// all Upload calls made on the same Uploader.
type Uploader struct {
	store DocumentStore
	mode  UploadMode
	sleep SleepFunc
	wrote bool
}

func NewUploader(store DocumentStore, mode UploadMode, sleep SleepFunc) *Uploader {
	if sleep == nil {
		sleep = Sleep
	}
	return &Uploader{store: store, mode: mode, sleep: sleep}
}

// Upload returns one result per batch processed. Creation failures are recorded,
// never returned; the error is non-nil only when ctx ends during a pause.
func (u *Uploader) Upload(ctx context.Context, records []models.RepoStatRecord) ([]models.BatchUploadResult, error) {
	if len(records) == 0 {
		return nil, nil
	}

	if u.mode.Serverless {
		return []models.BatchUploadResult{u.createBatch(ctx, records)}, nil
	}

	batches, err := throughput.Partition(records, u.mode.BudgetBytes, throughput.JSONSize[models.RepoStatRecord])
	if err != nil {
		if errors.Is(err, throughput.ErrOversizedItem) || errors.Is(err, throughput.ErrNoBudget) {
			log.Printf("Upload: %v, marking %d records failed", err, len(records))
			return []models.BatchUploadResult{rejectBatch(records)}, nil
		}
		return nil, fmt.Errorf("partition records: %w", err)
	}

	results := make([]models.BatchUploadResult, 0, len(batches))
	for _, batch := range batches {
		if u.wrote {
			if err := u.sleep(ctx, u.mode.Cooldown); err != nil {
				return results, err
			}
		}
		u.wrote = true
		results = append(results, u.createBatch(ctx, batch))
	}
	return results, nil
}

func (u *Uploader) createBatch(ctx context.Context, batch []models.RepoStatRecord) models.BatchUploadResult {
	result := models.BatchUploadResult{
		Received:    len(batch),
		CreatedList: []string{},
		FailedList:  []string{},
	}

	for i := range batch {
		record := &batch[i]
		result.Processed++

		name, err := u.store.CreateRepoStat(ctx, record)
		if err != nil {
			log.Printf("Upload: create %s failed: %v", record.ID, err)
			result.FailedCount++
			result.FailedList = append(result.FailedList, record.Repo)
			continue
		}
		result.CreatedCount++
		result.CreatedList = append(result.CreatedList, name)
	}

	result.Success = result.CreatedCount == result.Received
	return result
}

// rejectBatch classifies records that could not be scheduled at all.
func rejectBatch(records []models.RepoStatRecord) models.BatchUploadResult {
	result := models.BatchUploadResult{
		Received:    len(records),
		FailedCount: len(records),
		CreatedList: []string{},
		FailedList:  make([]string, 0, len(records)),
	}
	for _, r := range records {
		result.FailedList = append(result.FailedList, r.Repo)
	}
	return result
}
