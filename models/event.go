package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventSubjectRunCompleted = "RunCompleted"
	EventTypeRepoStats       = "GithubStats"
)

// RunEvent is published to the event bus once a run has persisted its status.
type RunEvent struct {
	ID        string       `json:"id"`
	Subject   string       `json:"subject"`
	Data      RunEventData `json:"data"`
	EventType string       `json:"eventType"`
	EventTime time.Time    `json:"eventTime"`
}

type RunEventData struct {
	RunInfoID   string `json:"runInfoId"`
	RunInfoDate string `json:"runInfoDate"`
}

func NewRunCompletedEvent(run *RunRecord, now time.Time) RunEvent {
	return RunEvent{
		ID:      uuid.NewString(),
		Subject: EventSubjectRunCompleted,
		Data: RunEventData{
			RunInfoID:   strconv.FormatInt(run.ID, 10),
			RunInfoDate: run.Date,
		},
		EventType: EventTypeRepoStats,
		EventTime: now.UTC(),
	}
}
