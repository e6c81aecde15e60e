package models

import (
	"fmt"
	"strings"
)

// RepoStatRecord is one repository snapshot for one run. Records are never updated.
type RepoStatRecord struct {
	ID            string `json:"id"`
	Repo          string `json:"repo"`
	IsArchived    bool   `json:"isArchived"`
	IsTemplate    bool   `json:"isTemplate"`
	RepoUpdatedAt string `json:"repoUpdatedAt"`
	OpenIssues    int    `json:"openIssues"`
	ClosedIssues  int    `json:"closedIssues"`
	TotalIssues   int    `json:"totalIssues"`
	OpenPRs       int    `json:"openPRs"`
	ClosedPRs     int    `json:"closedPRs"`
	MergedPRs     int    `json:"mergedPRs"`
	TotalPRs      int    `json:"totalPRs"`
	Stars         int    `json:"stars"`
}

// RepoStatID builds "{owner}.{name}.{runId}" from "owner/name".
func RepoStatID(nameWithOwner string, runID int64) string {
	return fmt.Sprintf("%s.%d", strings.ReplaceAll(nameWithOwner, "/", "."), runID)
}
