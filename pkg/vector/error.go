package vector

import "errors"

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStore is returned when the vector store rejects or fails a call.
	ErrStore = errors.New("vector store request failed")

	// ErrConnection is returned when the vector store cannot be reached or
	// initialized.
	ErrConnection = errors.New("vector store connection failed")
)
