package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/restyle/dom/roddoc"
	"github.com/hazyhaar/restyle/journal"
	"github.com/hazyhaar/restyle/live/internal/browser"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/persist/sqlitekv"
)

// storage holds the two KVs of a session and whatever must be closed.
type storage struct {
	changes persist.KV
	mode    persist.KV
	origin  *originKV // nil with the local backend
	db      *sqlitekv.Store
	journal *journal.Journal
}

func (s *storage) Close() error {
	if s.journal != nil {
		s.journal.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// retarget points the change KV at the origin of pageURL. localStorage
// follows the page's origin by itself.
func (s *storage) retarget(pageURL string) error {
	if s.origin == nil {
		return nil
	}
	return s.origin.retarget(pageURL)
}

func openStorage(cfg *Config, tab *browser.Tab, logger *slog.Logger) (*storage, error) {
	st := &storage{}
	if cfg.Storage.Path != "" {
		db, err := sqlitekv.Open(cfg.Storage.Path, logger)
		if err != nil {
			return nil, err
		}
		st.db = db
		st.mode = db.Scope(ModeScope)
		if st.journal, err = journal.New(db.DB(), logger); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		st.mode = persist.NewMemory()
	}

	switch cfg.Storage.Backend {
	case BackendLocal:
		st.changes = roddoc.NewLocalStorage(tab.Page)
	default:
		if st.db == nil {
			return nil, fmt.Errorf("live: sqlite backend needs storage.path")
		}
		st.origin = &originKV{db: st.db}
		if err := st.origin.retarget(tab.PageURL); err != nil {
			st.Close()
			return nil, err
		}
		st.changes = st.origin
	}
	return st, nil
}

// originKV is the sqlite scope of the page's current origin. Navigation
// to another origin moves it to that origin's scope.
type originKV struct {
	db *sqlitekv.Store

	mu    sync.RWMutex
	scope *sqlitekv.Scope
}

var _ persist.KV = (*originKV)(nil)

func (o *originKV) retarget(pageURL string) error {
	origin, err := sqlitekv.Origin(pageURL)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scope == nil || o.scope.Name() != origin {
		o.scope = o.db.Scope(origin)
	}
	return nil
}

func (o *originKV) current() *sqlitekv.Scope {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scope
}

func (o *originKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return o.current().Get(ctx, key)
}

func (o *originKV) Put(ctx context.Context, key string, value []byte) error {
	return o.current().Put(ctx, key, value)
}
