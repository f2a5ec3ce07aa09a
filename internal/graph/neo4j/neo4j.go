package neo4j

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	storeBooksQuery = "UNWIND $books AS row " +
		"MERGE (b:Book {isbn: row.isbn}) " +
		"SET b.title = row.title, b.thumbnail = row.thumbnail " +
		"FOREACH (_ IN CASE WHEN row.publisher <> '' THEN [1] ELSE [] END | " +
		"MERGE (p:Publisher {name: row.publisher}) MERGE (p)-[:PUBLISHED]->(b)) " +
		"FOREACH (name IN row.authors | " +
		"MERGE (a:Author {name: name}) MERGE (a)-[:WROTE]->(b))"

	booksByAuthorQuery = "MATCH (:Author {name: $name})-[:WROTE]->(b:Book) " +
		"OPTIONAL MATCH (p:Publisher)-[:PUBLISHED]->(b) " +
		"RETURN b.isbn AS isbn, b.title AS title, coalesce(p.name, '') AS publisher " +
		"ORDER BY b.title"
)

// Repository implements graph.Repository using Neo4j.
type Repository struct {
	driver neo4j.DriverWithContext
}

// New creates a Neo4j-backed repository.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

func (r *Repository) StoreChunk(ctx context.Context, chunk book.Chunk) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	rows := graph.Rows(chunk)
	params := make([]any, len(rows))
	for i, row := range rows {
		params[i] = row
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, storeBooksQuery, map[string]any{"books": params})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("store %d books: %w", len(rows), err)
	}
	return nil
}

func (r *Repository) BooksByAuthor(ctx context.Context, name string) ([]graph.Book, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, booksByAuthorQuery, map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		var books []graph.Book
		for records.Next(ctx) {
			rec := records.Record()
			isbn, _ := rec.Get("isbn")
			title, _ := rec.Get("title")
			publisher, _ := rec.Get("publisher")
			books = append(books, graph.Book{
				ISBN:      asString(isbn),
				Title:     asString(title),
				Publisher: asString(publisher),
			})
		}
		return books, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("books by author %q: %w", name, err)
	}
	books, _ := result.([]graph.Book)
	return books, nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

var _ graph.Repository = (*Repository)(nil)
