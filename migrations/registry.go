package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	authbroker "github.com/goliatone/go-auth-broker"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	migrationsRoot = "data/sql/migrations"
	defaultLabel   = "go-auth-broker"
)

// FilesystemSpec pairs a dialect with the migration files that apply to it.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives one dialect's migration filesystem, typically a
// go-persistence-bun client's RegisterSQLMigrations hook.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Registration struct {
	SourceLabel string
	Dialects    []string
	Filesystems []FilesystemSpec
}

type Option func(*Registration)

// WithSourceLabel overrides the label migrations are recorded under.
func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects. Tests
// use this to register only the sqlite tree.
func WithValidationTargets(dialects ...string) Option {
	return func(r *Registration) {
		selected := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			if trimmed := strings.TrimSpace(strings.ToLower(dialect)); trimmed != "" {
				selected = append(selected, trimmed)
			}
		}
		if len(selected) > 0 {
			r.Dialects = selected
		}
	}
}

// Filesystems resolves the embedded migration tree into per-dialect specs.
// Postgres files live at the tree root; sqlite overrides sit in a sqlite/
// subdirectory.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := authbroker.GetCoreMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, err := fs.Sub(root, migrationsRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", migrationsRoot, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: migrationsRoot, FS: base},
		{Dialect: DialectSQLite, Path: migrationsRoot + "/sqlite", FS: sqliteFS},
	}
	for _, spec := range specs {
		matches, globErr := fs.Glob(spec.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
		}
	}
	return specs, nil
}

// Register feeds each selected dialect's migration filesystem to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: defaultLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	specs, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = specs

	selected := make(map[string]struct{}, len(reg.Dialects))
	for _, dialect := range reg.Dialects {
		selected[dialect] = struct{}{}
	}
	for _, spec := range specs {
		if _, ok := selected[spec.Dialect]; !ok {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}
