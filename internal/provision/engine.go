// Package provision bootstraps index schemas and seed documents from
// description files. Re-running it against the same files is harmless:
// existing indexes are left alone and seed records overwrite themselves.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docgate/internal/db"
	domdoc "github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/metrics"
)

// Backend is the subset of db.Backend provisioning writes through.
type Backend interface {
	CreateIndex(ctx context.Context, ns db.Namespace, schema []byte) error
	IndexDocument(ctx context.Context, ns db.Namespace, id string, doc []byte, refresh bool) error
}

// Report counts what a run did.
type Report struct {
	IndexesCreated   int
	IndexesExisting  int
	IndexesFailed    int
	DocumentsLoaded  int
	DocumentsSkipped int
	DocumentsFailed  int
	FilesSkipped     int
}

// Failed returns the number of items that could not be applied.
func (r Report) Failed() int {
	return r.IndexesFailed + r.DocumentsFailed + r.FilesSkipped
}

// Engine applies description files to a backend.
type Engine struct {
	backend Backend
	logger  *zap.Logger
}

// New creates a provisioning engine.
func New(backend Backend, logger *zap.Logger) *Engine {
	return &Engine{backend: backend, logger: logger}
}

// Run creates every index described under indexs/ and then loads every
// seed file under datas/. Individual failures are logged and counted; only
// context cancellation stops the run early.
func (e *Engine) Run(ctx context.Context, fsys fs.FS) (Report, error) {
	var r Report

	if err := e.createIndexes(ctx, fsys, &r); err != nil {
		return r, err
	}
	if err := e.loadSeeds(ctx, fsys, &r); err != nil {
		return r, err
	}

	e.logger.Info("provisioning finished",
		zap.Int("indexes_created", r.IndexesCreated),
		zap.Int("indexes_existing", r.IndexesExisting),
		zap.Int("indexes_failed", r.IndexesFailed),
		zap.Int("documents_loaded", r.DocumentsLoaded),
		zap.Int("documents_skipped", r.DocumentsSkipped),
		zap.Int("documents_failed", r.DocumentsFailed),
		zap.Int("files_skipped", r.FilesSkipped),
	)
	return r, nil
}

// readIndexFiles returns the parseable index descriptions under indexs/.
// Malformed names are logged and counted in r.
func (e *Engine) readIndexFiles(fsys fs.FS, r *Report) []IndexFile {
	var out []IndexFile
	for _, name := range e.listDir(fsys, IndexDir) {
		ns, err := ParseFileName(name)
		if err != nil {
			e.skipFile(name, err, r)
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(IndexDir, name))
		if err != nil {
			e.skipFile(name, err, r)
			continue
		}
		out = append(out, IndexFile{Name: name, Namespace: ns, Schema: body})
	}
	return out
}

func (e *Engine) createIndexes(ctx context.Context, fsys fs.FS, r *Report) error {
	for _, f := range e.readIndexFiles(fsys, r) {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.backend.CreateIndex(ctx, f.Namespace, f.Schema)
		switch {
		case err == nil:
			r.IndexesCreated++
			metrics.ProvisionItemsTotal.WithLabelValues("index", "created").Inc()
			e.logger.Info("index created", zap.Stringer("namespace", f.Namespace), zap.String("file", f.Name))
		case errors.Is(err, db.ErrIndexExists):
			r.IndexesExisting++
			metrics.ProvisionItemsTotal.WithLabelValues("index", "exists").Inc()
			e.logger.Info("index already exists", zap.Stringer("namespace", f.Namespace))
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.IndexesFailed++
			metrics.ProvisionItemsTotal.WithLabelValues("index", "failed").Inc()
			e.logger.Error("create index failed",
				zap.Stringer("namespace", f.Namespace),
				zap.String("file", f.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (e *Engine) loadSeeds(ctx context.Context, fsys fs.FS, r *Report) error {
	for _, name := range e.listDir(fsys, DataDir) {
		ns, err := ParseFileName(name)
		if err != nil {
			e.skipFile(name, err, r)
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(DataDir, name))
		if err != nil {
			e.skipFile(name, err, r)
			continue
		}
		docs, err := domdoc.DecodeArray(body)
		if err != nil {
			e.skipFile(name, fmt.Errorf("seed file must be a JSON array of objects: %w", err), r)
			continue
		}
		if err := e.loadFile(ctx, ns, name, docs, r); err != nil {
			return err
		}
	}
	return nil
}

// loadFile writes one seed file. Only the last keyed record refreshes, so
// the whole file becomes visible at once.
func (e *Engine) loadFile(ctx context.Context, ns db.Namespace, name string, docs []domdoc.Document, r *Report) error {
	last := -1
	for i, doc := range docs {
		if _, ok := doc.ID(); ok {
			last = i
		}
	}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, ok := doc.ID()
		if !ok {
			r.DocumentsSkipped++
			metrics.ProvisionItemsTotal.WithLabelValues("document", "skipped").Inc()
			e.logger.Warn("seed record has no id, skipping",
				zap.String("file", name),
				zap.Int("position", i),
			)
			continue
		}

		data, err := doc.Encode()
		if err == nil {
			err = e.backend.IndexDocument(ctx, ns, id, data, i == last)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.DocumentsFailed++
			metrics.ProvisionItemsTotal.WithLabelValues("document", "failed").Inc()
			e.logger.Error("seed record failed",
				zap.Stringer("namespace", ns),
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		r.DocumentsLoaded++
		metrics.ProvisionItemsTotal.WithLabelValues("document", "loaded").Inc()
	}
	e.logger.Info("seed file loaded", zap.Stringer("namespace", ns), zap.String("file", name))
	return nil
}

// listDir returns the regular file names in dir, sorted. A missing or
// unreadable directory is logged and yields nothing.
func (e *Engine) listDir(fsys fs.FS, dir string) []string {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		e.logger.Warn("provisioning directory unavailable",
			zap.String("dir", dir),
			zap.Error(err),
		)
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names
}

func (e *Engine) skipFile(name string, err error, r *Report) {
	r.FilesSkipped++
	metrics.ProvisionItemsTotal.WithLabelValues("file", "skipped").Inc()
	e.logger.Warn("description file skipped", zap.String("file", name), zap.Error(err))
}
