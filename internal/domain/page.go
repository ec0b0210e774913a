package domain

// PageRequest asks for a window of the conversation log. Before is an
// exclusive ULID cursor; empty means "newest page".
type PageRequest struct {
	Limit     int    `json:"limit"`
	Before    string `json:"beforeCursor,omitempty"`
	Ascending bool   `json:"sortOrder"`
}

// Page is one window of the log in chronological order, plus the cursor
// for the next older page.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
	Cursor   string    `json:"cursor"`
}
