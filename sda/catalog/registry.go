package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sourcegraph/conc/pool"
)

// IgnoreFile is read from the data folder, when present, with gitignore syntax.
const IgnoreFile = ".sdaignore"

// Options tunes ingestion.
type Options struct {
	Concurrency int      // parallel CSV parsers
	Ignore      []string // gitignore patterns applied to file names
}

// Registry owns the tables created from CSV files and the catalog describing them.
type Registry struct {
	db     *sql.DB
	opts   Options
	logger zerolog.Logger

	mu      sync.RWMutex
	folder  string
	current *Catalog
}

// NewRegistry creates an empty registry writing to db.
func NewRegistry(db *sql.DB, opts Options, logger zerolog.Logger) *Registry {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Registry{
		db:     db,
		opts:   opts,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Load ingests every CSV file directly inside folder. Either all files are
// loaded and the catalog replaced, or nothing changes and an *IngestionError
// is returned.
func (r *Registry) Load(ctx context.Context, folder string) (*Catalog, error) {
	files, err := r.discover(folder)
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[parsedTable]().
		WithContext(ctx).
		WithMaxGoroutines(r.opts.Concurrency)
	for _, f := range files {
		p.Go(func(ctx context.Context) (parsedTable, error) {
			return parseFile(ctx, f)
		})
	}
	parsed, err := p.Wait()
	if err != nil {
		var ie *IngestionError
		if errors.As(err, &ie) {
			return nil, ie
		}
		return nil, &IngestionError{Err: err}
	}
	// pool results arrive in completion order
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].info.Name < parsed[j].info.Name })

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := make(map[string]bool, len(parsed))
	infos := make([]TableInfo, len(parsed))
	for i, t := range parsed {
		loaded[t.info.Name] = true
		infos[i] = t.info
	}
	var stale []string
	for _, name := range r.current.Names() {
		if !loaded[name] {
			stale = append(stale, name)
		}
	}

	if err := writeTables(ctx, r.db, parsed, stale); err != nil {
		return nil, err
	}

	r.folder = folder
	r.current = newCatalog(infos, r.current.Generation()+1)
	r.logger.Info().
		Str("folder", folder).
		Int("tables", len(infos)).
		Uint64("generation", r.current.generation).
		Msg("catalog loaded")
	return r.current, nil
}

// Reload re-ingests the folder of the last successful Load.
func (r *Registry) Reload(ctx context.Context) (*Catalog, error) {
	r.mu.RLock()
	folder := r.folder
	r.mu.RUnlock()
	if folder == "" {
		return nil, &IngestionError{Err: errors.New("reload before any successful load")}
	}
	return r.Load(ctx, folder)
}

// Catalog returns the current catalog; it is nil before the first Load.
func (r *Registry) Catalog() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// ListTables returns the loaded table names in lexicographic order.
func (r *Registry) ListTables() []string {
	return r.Catalog().Names()
}

// Folder returns the folder of the last successful Load.
func (r *Registry) Folder() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.folder
}

// DB exposes the database the tables live in.
func (r *Registry) DB() *sql.DB { return r.db }

// discover lists the CSV files to load and rejects table name collisions.
func (r *Registry) discover(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, &IngestionError{File: folder, Err: err}
	}
	matcher, err := r.matcher(folder)
	if err != nil {
		return nil, &IngestionError{File: filepath.Join(folder, IgnoreFile), Err: err}
	}

	owners := make(map[string]string)
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isCSV(e.Name()) {
			continue
		}
		if matcher.MatchesPath(e.Name()) {
			r.logger.Debug().Str("file", e.Name()).Msg("ignored")
			continue
		}
		path := filepath.Join(folder, e.Name())
		name := TableName(path)
		if prev, ok := owners[name]; ok {
			return nil, &IngestionError{
				File: path,
				Err:  fmt.Errorf("table name %q collides with %s", name, filepath.Base(prev)),
			}
		}
		owners[name] = path
		files = append(files, path)
	}
	return files, nil
}

func (r *Registry) matcher(folder string) (*ignore.GitIgnore, error) {
	path := filepath.Join(folder, IgnoreFile)
	if _, err := os.Stat(path); err == nil {
		return ignore.CompileIgnoreFileAndLines(path, r.opts.Ignore...)
	}
	return ignore.CompileIgnoreLines(r.opts.Ignore...), nil
}

func isCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
