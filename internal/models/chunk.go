package models

// Page is the plain text of one PDF page. Number starts at 1.
type Page struct {
	Number int
	Text   string
}

// Chunk represents a parsed chunk with metadata.
// SourcePage is 1-based, zero when the page is unknown.
type Chunk struct {
	ID         string `json:"chunk_id"`
	Text       string `json:"text"`
	SourcePage int    `json:"source_page,omitempty"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
}

// SearchResult is a stored chunk and its similarity to the query.
type SearchResult struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
	Chunks  []SearchResult
}

// StreamToken is one increment of a streamed answer. A token with Err set is terminal.
type StreamToken struct {
	Content string
	Err     error
}
