package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"proposaldesk/api/internal/status"
)

// PgFTS implements Searcher over the generated tsvector columns of
// submissions and submission_comments.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs one UNION ALL over proposals and comments ranked by ts_rank.
// Proposal names and ids use the simple configuration so partial ids and
// names match without stemming.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultProposal {
		subQueries = append(subQueries, `
			SELECT 'proposal'::text AS type, s.unique_id AS id, s.unique_id, s.name AS title,
				s.unique_id || ' ' || s.agent AS snippet, s.agent, s.application_status AS status,
				ts_rank(s.fts, plainto_tsquery('simple', $1)) AS rank
			FROM submissions s
			WHERE s.fts @@ plainto_tsquery('simple', $1)`)
	}
	if q.FilterType == "" || q.FilterType == ResultComment {
		subQueries = append(subQueries, `
			SELECT 'comment'::text AS type, c.id::text, c.unique_id, c.modifier AS title,
				ts_headline('english', c.comment, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
				s.agent, ''::text AS status,
				ts_rank(c.fts, plainto_tsquery('english', $1)) AS rank
			FROM submission_comments c
			JOIN submissions s ON s.unique_id = c.unique_id
			WHERE c.fts @@ plainto_tsquery('english', $1)`)
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, unique_id, title, snippet, agent, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.UniqueID, &r.Title, &r.Snippet, &r.Agent, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		if r.Status != "" {
			r.Status = status.Label(status.MigrateLegacy(r.Status))
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProposalRecord, []CommentRecord, error) {
	proposalRows, err := p.db.QueryContext(ctx, `
		SELECT unique_id, name, agent, application_status
		FROM submissions
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load proposals: %w", err)
	}
	defer proposalRows.Close()

	proposals := make([]ProposalRecord, 0)
	for proposalRows.Next() {
		var r ProposalRecord
		if err := proposalRows.Scan(&r.ID, &r.Name, &r.Agent, &r.Status); err != nil {
			return nil, nil, fmt.Errorf("scan proposal: %w", err)
		}
		r.Status = status.MigrateLegacy(r.Status)
		r.Label = status.Label(r.Status)
		proposals = append(proposals, r)
	}
	if err := proposalRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate proposals: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id::text, c.unique_id, s.agent, c.modifier, c.comment
		FROM submission_comments c
		JOIN submissions s ON s.unique_id = c.unique_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.UniqueID, &c.Agent, &c.Modifier, &c.Comment); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return proposals, comments, nil
}
