package ledger

import (
	"context"
	"errors"

	"gitlab.com/nunet/nosana-node-monitor/models"
)

var (
	// ErrCorrupt is returned by Load when the stored ledger cannot be decoded.
	ErrCorrupt = errors.New("ledger is corrupt")
	// ErrUnsupportedVersion is returned by Load for ledgers written by a newer release.
	ErrUnsupportedVersion = errors.New("ledger version not supported")
)

// Store persists one ledger document per node address.
type Store interface {
	// Load returns the ledger of node, or an empty document if none exists yet.
	Load(ctx context.Context, node string) (models.LedgerDocument, error)
	// Save replaces the stored ledger of node.
	Save(ctx context.Context, node string, doc models.LedgerDocument) error
}

// Migrate brings doc up to the current layout version.
func Migrate(doc models.LedgerDocument) (models.LedgerDocument, error) {
	switch {
	case doc.Version == 0:
		// unversioned ledgers share the v1 layout
		doc.Version = models.LedgerVersion
	case doc.Version > models.LedgerVersion:
		return models.NewLedgerDocument(), ErrUnsupportedVersion
	}
	if doc.Jobs == nil {
		doc.Jobs = map[string]models.JobRecord{}
	}
	for id, rec := range doc.Jobs {
		if rec.JobID == "" {
			rec.JobID = id
			doc.Jobs[id] = rec
		}
	}
	return doc, nil
}
