package github

import (
	"encoding/json"
	"errors"
	"fmt"

	"ghstats/models"
)

var ErrMissingField = errors.New("github: missing field in query result")

type totalCount struct {
	TotalCount *int `json:"totalCount"`
}

type repoResult struct {
	NameWithOwner *string     `json:"nameWithOwner"`
	IsArchived    *bool       `json:"isArchived"`
	IsTemplate    *bool       `json:"isTemplate"`
	UpdatedAt     *string     `json:"updatedAt"`
	Issues        *totalCount `json:"Issues"`
	OpenIssues    *totalCount `json:"openIssues"`
	ClosedIssues  *totalCount `json:"closedIssues"`
	PRs           *totalCount `json:"PRs"`
	OpenPRs       *totalCount `json:"openPRs"`
	ClosedPRs     *totalCount `json:"closedPRs"`
	MergedPRs     *totalCount `json:"mergedPRs"`
	Stars         *totalCount `json:"stars"`
}

// ParseResult turns the data object of one executed query into records ordered r0..r{k-1}.
// Any absent alias or field fails the whole batch.
func ParseResult(data map[string]json.RawMessage, runID int64) ([]models.RepoStatRecord, error) {
	records := make([]models.RepoStatRecord, 0, len(data))

	for i := 0; i < len(data); i++ {
		alias := Alias(i)
		raw, ok := data[alias]
		if !ok || string(raw) == "null" {
			return nil, fmt.Errorf("%w: alias %s", ErrMissingField, alias)
		}

		var r repoResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", alias, err)
		}

		record, err := r.record(alias, runID)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *repoResult) record(alias string, runID int64) (models.RepoStatRecord, error) {
	if r.NameWithOwner == nil {
		return models.RepoStatRecord{}, fmt.Errorf("%w: %s.nameWithOwner", ErrMissingField, alias)
	}
	if r.IsArchived == nil || r.IsTemplate == nil {
		return models.RepoStatRecord{}, fmt.Errorf("%w: %s.isArchived/isTemplate", ErrMissingField, alias)
	}
	if r.UpdatedAt == nil {
		return models.RepoStatRecord{}, fmt.Errorf("%w: %s.updatedAt", ErrMissingField, alias)
	}

	counts := []struct {
		name  string
		field *totalCount
	}{
		{"Issues", r.Issues},
		{"openIssues", r.OpenIssues},
		{"closedIssues", r.ClosedIssues},
		{"PRs", r.PRs},
		{"openPRs", r.OpenPRs},
		{"closedPRs", r.ClosedPRs},
		{"mergedPRs", r.MergedPRs},
		{"stars", r.Stars},
	}
	for _, c := range counts {
		if c.field == nil || c.field.TotalCount == nil {
			return models.RepoStatRecord{}, fmt.Errorf("%w: %s.%s.totalCount", ErrMissingField, alias, c.name)
		}
	}

	return models.RepoStatRecord{
		ID:            models.RepoStatID(*r.NameWithOwner, runID),
		Repo:          *r.NameWithOwner,
		IsArchived:    *r.IsArchived,
		IsTemplate:    *r.IsTemplate,
		RepoUpdatedAt: *r.UpdatedAt,
		OpenIssues:    *r.OpenIssues.TotalCount,
		ClosedIssues:  *r.ClosedIssues.TotalCount,
		TotalIssues:   *r.Issues.TotalCount,
		OpenPRs:       *r.OpenPRs.TotalCount,
		ClosedPRs:     *r.ClosedPRs.TotalCount,
		MergedPRs:     *r.MergedPRs.TotalCount,
		TotalPRs:      *r.PRs.TotalCount,
		Stars:         *r.Stars.TotalCount,
	}, nil
}
