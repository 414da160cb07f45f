package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProposal ResultType = "proposal"
	ResultComment  ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	UniqueID string     `json:"unique_id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Agent    string     `json:"agent"`
	Status   string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend,omitempty"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexProposal(p ProposalRecord) error
	IndexComment(c CommentRecord) error
	DeleteProposal(id string) error
}

// ProposalRecord is the data we index for a proposal.
type ProposalRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Agent  string `json:"agent"`
	Status string `json:"status"`
	Label  string `json:"label"`
}

// CommentRecord is the data we index for a proposal comment.
type CommentRecord struct {
	ID       string `json:"id"`
	UniqueID string `json:"uniqueId"`
	Agent    string `json:"agent"`
	Modifier string `json:"modifier"`
	Comment  string `json:"comment"`
}
