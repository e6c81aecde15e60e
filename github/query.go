package github

import (
	"fmt"
	"strconv"
	"strings"
)

// repoFields is requested for every aliased repository. Alias names inside the
// selection are what ParseResult reads back.
const repoFields = `{nameWithOwner,isArchived,isTemplate,updatedAt,` +
	`Issues: issues {totalCount},openIssues: issues(states: OPEN) {totalCount},closedIssues: issues(states: CLOSED) {totalCount},` +
	`PRs: pullRequests {totalCount},openPRs: pullRequests(states: OPEN) {totalCount},closedPRs: pullRequests(states: CLOSED) {totalCount},` +
	`mergedPRs: pullRequests(states: MERGED) {totalCount},stars: stargazers {totalCount}}`

// Alias is the query-local name of the i-th repository of a batch.
func Alias(i int) string {
	return "r" + strconv.Itoa(i)
}

// SplitRepos groups repos into consecutive chunks of at most size entries.
func SplitRepos(repos []string, size int) [][]string {
	if size <= 0 {
		return nil
	}

	groups := make([][]string, 0, (len(repos)+size-1)/size)
	for start := 0; start < len(repos); start += size {
		end := min(start+size, len(repos))
		groups = append(groups, repos[start:end])
	}
	return groups
}

// BuildQuery renders one composite query that aliases repos[i] as r{i}.
// Owner and name are embedded verbatim.
func BuildQuery(repos []string) (string, error) {
	var b strings.Builder
	b.WriteString("query getRepoStats {")
	for i, repo := range repos {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" {
			return "", fmt.Errorf("build query: %q is not owner/name", repo)
		}
		fmt.Fprintf(&b, `%s: repository(owner: "%s", name: "%s") %s`, Alias(i), owner, name, repoFields)
	}
	b.WriteString("}")
	return b.String(), nil
}
