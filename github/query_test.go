package github

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRepos(t *testing.T) {
	repos := []string{"a/1", "a/2", "a/3", "a/4", "a/5"}

	tests := []struct {
		name  string
		size  int
		sizes []int
	}{
		{"uneven tail", 2, []int{2, 2, 1}},
		{"exact multiple", 5, []int{5}},
		{"single", 1, []int{1, 1, 1, 1, 1}},
		{"larger than list", 50, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := SplitRepos(repos, tt.size)
			require.Len(t, groups, len(tt.sizes))

			var flat []string
			for i, g := range groups {
				assert.Len(t, g, tt.sizes[i])
				flat = append(flat, g...)
			}
			assert.Equal(t, repos, flat)
		})
	}
}

func TestSplitRepos_Empty(t *testing.T) {
	assert.Empty(t, SplitRepos(nil, 3))
	assert.Nil(t, SplitRepos([]string{"a/b"}, 0))
}

func TestBuildQuery(t *testing.T) {
	query, err := BuildQuery([]string{"acme/app", "indie/tool"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "query getRepoStats {"))
	assert.True(t, strings.HasSuffix(query, "}"))
	assert.Contains(t, query, `r0: repository(owner: "acme", name: "app")`)
	assert.Contains(t, query, `r1: repository(owner: "indie", name: "tool")`)
	assert.Less(t, strings.Index(query, "r0:"), strings.Index(query, "r1:"))

	for _, field := range []string{"nameWithOwner", "isArchived", "isTemplate", "updatedAt",
		"Issues: issues", "openIssues:", "closedIssues:", "PRs: pullRequests", "openPRs:", "closedPRs:",
		"mergedPRs: pullRequests(states: MERGED)", "stars: stargazers"} {
		assert.Contains(t, query, field)
	}
}

func TestBuildQuery_RejectsMalformedRepo(t *testing.T) {
	_, err := BuildQuery([]string{"acme/app", "nope"})
	assert.Error(t, err)
}
