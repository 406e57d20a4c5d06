package types

import (
	"errors"
	"time"
)

// Document represents a source text registered with the store. Chunks always
// belong to exactly one document; deleting the document removes them.
type Document struct {
	ID       int64
	URI      string // Origin identifier (path, URL, or logical name). May be empty.
	Metadata map[string]interface{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks if the document is well formed.
func (d *Document) Validate() error {
	if d.ID < 0 {
		return errors.New("document ID cannot be negative")
	}
	return nil
}
