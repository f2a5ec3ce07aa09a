// Package book defines the catalog records flowing through the collector.
package book

import (
	"strings"
	"time"
)

// Record is a raw document as returned by the catalog search API.
type Record struct {
	ISBN        string   `json:"isbn"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Publisher   string   `json:"publisher"`
	Contents    string   `json:"contents"`
	Thumbnail   string   `json:"thumbnail"`
	URL         string   `json:"url,omitempty"`
	Datetime    string   `json:"datetime,omitempty"`
	Translators []string `json:"translators,omitempty"`
	Price       int      `json:"price,omitempty"`
	SalePrice   int      `json:"sale_price,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// ID returns the normalized identifier of the record.
func (r Record) ID() string {
	return NormalizeISBN(r.ISBN)
}

// NormalizeISBN returns the first whitespace-delimited token of raw.
// The catalog reports "ISBN10 ISBN13" pairs; either half may be missing.
func NormalizeISBN(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Enriched is a record plus its embedding and processing metadata.
// Values are built once by the processor and never mutated afterwards.
type Enriched struct {
	ISBN           string    `json:"isbn"`
	Title          string    `json:"title"`
	Authors        []string  `json:"authors"`
	Publisher      string    `json:"publisher"`
	Contents       string    `json:"contents"`
	Thumbnail      string    `json:"thumbnail"`
	Embedding      []float32 `json:"embedding"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessingTime float64   `json:"processing_time"`
	Attempts       int       `json:"attempts"`
}

// Chunk maps ISBN to enriched record. It is the unit persisted by the chunk store.
type Chunk map[string]Enriched

// IDs returns the keys of the chunk.
func (c Chunk) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	return ids
}
