package entity

import (
	"fmt"
	"time"
)

// titlePrefixLimit bounds the metadata excerpt stored alongside a vector.
const titlePrefixLimit = 120

// EntryEmbedding is the vector fingerprint of an entry.
// EntryKey is the string form of the entry id and is the key of record
// in the vector store; the numeric EntryID backs the relational cascade.
type EntryEmbedding struct {
	ID          int64
	EntryID     int64
	EntryKey    string
	TitlePrefix string
	Model       string
	Dimension   int
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks that the embedding is internally consistent before storage.
func (e *EntryEmbedding) Validate() error {
	if e.EntryID <= 0 {
		return &ValidationError{Field: "entry_id", Message: "entry ID is required"}
	}
	if e.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if e.Dimension <= 0 {
		return &ValidationError{Field: "dimension", Message: "dimension must be positive"}
	}
	if len(e.Embedding) != e.Dimension {
		return &ValidationError{
			Field:   "embedding",
			Message: fmt.Sprintf("vector length %d does not match dimension %d", len(e.Embedding), e.Dimension),
		}
	}
	if r := []rune(e.TitlePrefix); len(r) > titlePrefixLimit {
		e.TitlePrefix = string(r[:titlePrefixLimit])
	}
	return nil
}
