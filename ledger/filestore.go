package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
	"gitlab.com/nunet/nosana-node-monitor/models"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// FileStore keeps each ledger as a JSON file under dir.
type FileStore struct {
	fs  afero.Fs
	dir string
}

func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir}
}

// Path returns the file holding the ledger of node.
func (s *FileStore) Path(node string) string {
	return filepath.Join(s.dir, "ledger_"+unsafeFileChars.ReplaceAllString(node, "_")+".json")
}

func (s *FileStore) Load(_ context.Context, node string) (models.LedgerDocument, error) {
	path := s.Path(node)
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewLedgerDocument(), nil
		}
		return models.NewLedgerDocument(), errors.Wrap(err, "reading ledger")
	}

	var doc models.LedgerDocument
	if err := jsonx.Unmarshal(raw, &doc); err != nil {
		// keep the unreadable file aside instead of overwriting it on the next save
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := s.fs.Rename(path, aside); rerr != nil {
			zlog.Sugar().Warnf("could not move corrupt ledger %s: %v", path, rerr)
		}
		return models.NewLedgerDocument(), fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return Migrate(doc)
}

func (s *FileStore) Save(_ context.Context, node string, doc models.LedgerDocument) error {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return errors.Wrap(err, "creating ledger directory")
	}
	doc.Version = models.LedgerVersion
	raw, err := jsonx.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding ledger")
	}

	path := s.Path(node)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "writing ledger")
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "replacing ledger")
	}
	return nil
}
