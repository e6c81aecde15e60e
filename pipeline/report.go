package pipeline

import (
	"fmt"
	"html"
	"strings"

	"ghstats/models"
)

// Aggregate folds batch results into run totals. Lists keep processing order.
func Aggregate(results []models.BatchUploadResult) models.RunStatusReport {
	var (
		report  models.RunStatusReport
		created []string
		failed  []string
	)
	for _, r := range results {
		report.TotalReceived += r.Received
		report.TotalProcessed += r.Processed
		report.TotalCreatedCount += r.CreatedCount
		report.TotalFailedCount += r.FailedCount
		created = append(created, r.CreatedList...)
		failed = append(failed, r.FailedList...)
	}
	report.CreatedList = strings.Join(created, ",")
	report.FailedList = strings.Join(failed, ",")
	return report
}

// Summary renders the report body used in the completion notification.
func Summary(r models.RunStatusReport) string {
	return fmt.Sprintf("<b>Total received: %d <br>Total processed: %d<br>Total created: %d<br>Total failed: %d <br>Failed List: %s<br></b>",
		r.TotalReceived, r.TotalProcessed, r.TotalCreatedCount, r.TotalFailedCount, html.EscapeString(r.FailedList))
}

type eventOutcome int

const (
	eventSkipped eventOutcome = iota
	eventPosted
	eventFailed
)

func completionMessage(outcome eventOutcome, r models.RunStatusReport) string {
	var head string
	switch outcome {
	case eventPosted:
		head = "Run completed and posted to event bus"
	case eventFailed:
		head = "Run completed, failed to post to event bus"
	default:
		head = "Run completed"
	}
	return head + " <br><br>" + Summary(r)
}

func startedMessage(runID int64) string {
	return fmt.Sprintf("Run started with run id: %d", runID)
}

func abortedMessage(runID int64, err error) string {
	return fmt.Sprintf("Run %d aborted: %s", runID, html.EscapeString(err.Error()))
}

const allocationFailedMessage = "Failed to obtain run id for current run"
