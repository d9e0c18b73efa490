package github

import "time"

// PullRequest is the subset of pull request metadata the report uses.
type PullRequest struct {
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	State      string    `json:"state"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"created_at"`
	MergedAt   time.Time `json:"merged_at"`
	HeadBranch string    `json:"head_branch"`
	Additions  int64     `json:"additions"`
	Deletions  int64     `json:"deletions"`
}

// Merged reports whether the pull request was merged.
func (p PullRequest) Merged() bool {
	return !p.MergedAt.IsZero()
}

// graphQLRequest is the POST body for the GraphQL endpoint.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// searchResponse is the GraphQL response for the merged PR search.
type searchResponse struct {
	Data struct {
		Search struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []prNode `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

type prNode struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	MergedAt    *time.Time `json:"mergedAt"`
	HeadRefName string     `json:"headRefName"`
	Additions   int64      `json:"additions"`
	Deletions   int64      `json:"deletions"`
	Author      *struct {
		Login string `json:"login"`
	} `json:"author"`
}

func (n prNode) toPullRequest() PullRequest {
	pr := PullRequest{
		Number:     n.Number,
		Title:      n.Title,
		Body:       n.Body,
		State:      n.State,
		CreatedAt:  n.CreatedAt,
		HeadBranch: n.HeadRefName,
		Additions:  n.Additions,
		Deletions:  n.Deletions,
	}
	if n.MergedAt != nil {
		pr.MergedAt = *n.MergedAt
	}
	if n.Author != nil {
		pr.Author = n.Author.Login
	}
	return pr
}
