package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghstats/models"
	"ghstats/throughput"
)

func testRecords(repos ...string) []models.RepoStatRecord {
	records := make([]models.RepoStatRecord, 0, len(repos))
	for _, repo := range repos {
		records = append(records, models.RepoStatRecord{ID: models.RepoStatID(repo, 1), Repo: repo})
	}
	return records
}

func TestUpload_SecondCreateFails(t *testing.T) {
	store := newFakeStore()
	store.failCreate["o/r2"] = true

	u := NewUploader(store, UploadMode{Serverless: true}, (&recordingSleep{}).sleep)
	results, err := u.Upload(context.Background(), testRecords("o/r1", "o/r2", "o/r3"))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, models.BatchUploadResult{
		Received:     3,
		Processed:    3,
		CreatedCount: 2,
		FailedCount:  1,
		CreatedList:  []string{"o/r1", "o/r3"},
		FailedList:   []string{"o/r2"},
		Success:      false,
	}, results[0])
}

func TestUpload_AllCreatedIsSuccess(t *testing.T) {
	u := NewUploader(newFakeStore(), UploadMode{Serverless: true}, (&recordingSleep{}).sleep)
	results, err := u.Upload(context.Background(), testRecords("o/r1", "o/r2"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Empty(t, results[0].FailedList)
}

func TestUpload_ProvisionedPartitionsAndPaces(t *testing.T) {
	records := testRecords("o/r1", "o/r2", "o/r3")
	size := throughput.JSONSize(records[0])
	sleeper := &recordingSleep{}

	store := newFakeStore()
	u := NewUploader(store, UploadMode{BudgetBytes: 2*size + 1, Cooldown: time.Second}, sleeper.sleep)

	results, err := u.Upload(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Received)
	assert.Equal(t, 1, results[1].Received)
	assert.Equal(t, []time.Duration{time.Second}, sleeper.delays)

	// a later group still waits before its first batch
	_, err = u.Upload(context.Background(), testRecords("o/r4"))
	require.NoError(t, err)
	assert.Len(t, sleeper.delays, 2)
	assert.Len(t, store.created, 4)
}

func TestUpload_OversizedRecordFailsGroup(t *testing.T) {
	store := newFakeStore()
	u := NewUploader(store, UploadMode{BudgetBytes: 10}, (&recordingSleep{}).sleep)

	results, err := u.Upload(context.Background(), testRecords("o/r1", "o/r2"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Received)
	assert.Equal(t, 0, results[0].Processed)
	assert.Equal(t, 2, results[0].FailedCount)
	assert.Equal(t, []string{"o/r1", "o/r2"}, results[0].FailedList)
	assert.Empty(t, store.created)
}

func TestUpload_CancelledDuringCooldown(t *testing.T) {
	records := testRecords("o/r1", "o/r2")
	size := throughput.JSONSize(records[0])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := NewUploader(newFakeStore(), UploadMode{BudgetBytes: size, Cooldown: time.Second}, (&recordingSleep{}).sleep)
	results, err := u.Upload(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
}
