// Package archive copies stored login records into secondary systems for
// search and analytics. The Redis record store stays the source of truth.
package archive

import (
	"context"

	"whozere-relay/internal/models"
)

// RecordMirror receives every record after it has been persisted.
type RecordMirror interface {
	Name() string
	Mirror(ctx context.Context, record *models.LoginRecord) error
}

// DocumentIndexer is the subset of client.ESClient used by ESMirror.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

// ESMirror indexes each record as a document keyed by record id.
type ESMirror struct {
	indexer DocumentIndexer
	index   string
}

func NewESMirror(indexer DocumentIndexer, index string) *ESMirror {
	return &ESMirror{indexer: indexer, index: index}
}

func (m *ESMirror) Name() string { return "elasticsearch" }

func (m *ESMirror) Mirror(ctx context.Context, record *models.LoginRecord) error {
	return m.indexer.IndexDocument(ctx, m.index, record.ID, record)
}
