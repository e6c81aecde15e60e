package models

import "strings"

// Sources is the repository source file: whole organizations plus single repositories.
type Sources struct {
	FullOrgs        []OrgSource `json:"fullOrgs" yaml:"fullOrgs"`
	IndividualRepos []string    `json:"individualRepos" yaml:"individualRepos"`
}

type OrgSource struct {
	OrgName string `json:"orgName" yaml:"orgName"`
	Exclude string `json:"exclude,omitempty" yaml:"exclude"`
}

// Excluded returns the bare repository names listed in the comma-separated exclude value.
func (o OrgSource) Excluded() map[string]bool {
	excluded := make(map[string]bool)
	for _, name := range strings.Split(o.Exclude, ",") {
		if name = strings.TrimSpace(name); name != "" {
			excluded[name] = true
		}
	}
	return excluded
}

// Filter drops every "owner/name" whose bare name is excluded, keeping order.
func (o OrgSource) Filter(repos []string) []string {
	excluded := o.Excluded()
	kept := make([]string, 0, len(repos))
	for _, repo := range repos {
		name := repo
		if _, after, ok := strings.Cut(repo, "/"); ok {
			name = after
		}
		if excluded[name] {
			continue
		}
		kept = append(kept, repo)
	}
	return kept
}
