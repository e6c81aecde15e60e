package models

// BatchUploadResult describes the outcome of creating one batch of RepoStatRecords.
type BatchUploadResult struct {
	Received     int      `json:"received"`
	Processed    int      `json:"processed"`
	CreatedCount int      `json:"createdCount"`
	FailedCount  int      `json:"failedCount"`
	CreatedList  []string `json:"createdList"`
	FailedList   []string `json:"failedList"`
	Success      bool     `json:"success"`
}

// RunStatusReport is the folded result of every BatchUploadResult in a run.
type RunStatusReport struct {
	TotalReceived     int    `json:"totalReceived"`
	TotalProcessed    int    `json:"totalProcessed"`
	TotalCreatedCount int    `json:"totalCreatedCount"`
	TotalFailedCount  int    `json:"totalFailedCount"`
	CreatedList       string `json:"createdList"`
	FailedList        string `json:"failedList"`
}
