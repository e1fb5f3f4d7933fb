package store

// SearchResult is one FTS5 match across cards, documents, and decisions.
type SearchResult struct {
	EntityType string
	EntityID   string
	ProjectID  string
	Title      string
	Snippet    string
	Rank       float64
}

// SearchFullText runs a match query against the search_index virtual
// table populated by the triggers in migration 6, ordered by FTS5's
// bm25 rank (ascending — lower is more relevant).
func (s *Store) SearchFullText(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT entity_type, entity_id, project_id, title,
			snippet(search_index, 4, '[', ']', '...', 10) AS snippet,
			bm25(search_index) AS rank
		FROM search_index WHERE search_index MATCH ? ORDER BY rank ASC LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, wrapStorage("search full text", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.EntityType, &r.EntityID, &r.ProjectID, &r.Title, &r.Snippet, &r.Rank); err != nil {
			return nil, wrapStorage("scan search result", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
