package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written. Binaries read the embedded
// copy of it so they do not depend on the working directory.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source resolves dir to a migration filesystem. DefaultDir and "" resolve
// to the embedded set.
func Source(dir string) (fs.FS, error) {
	if dir == "" || filepath.Clean(dir) == filepath.Clean(DefaultDir) {
		return fs.Sub(embedded, "migrations")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations dir %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// Result is one applied or reverted migration.
type Result struct {
	Version   int64
	Path      string
	Direction string
	Applied   bool
}

func (r Result) String() string {
	state := "pending"
	if r.Applied {
		state = "applied"
	}
	if r.Direction != "" {
		state = r.Direction
	}
	return fmt.Sprintf("%d %s %s", r.Version, state, r.Path)
}

func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys, err := Source(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes up, down, redo, reset or status and returns the affected
// migrations in the order goose reported them.
func Run(ctx context.Context, db *sql.DB, dir string, command string) ([]Result, error) {
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}

	switch command {
	case "up":
		return fromResults(provider.Up(ctx))
	case "down":
		res, err := provider.Down(ctx)
		return fromResults(single(res), err)
	case "redo":
		down, err := provider.Down(ctx)
		if err != nil {
			return fromResults(single(down), err)
		}
		up, err := provider.UpByOne(ctx)
		return fromResults(append(single(down), single(up)...), err)
	case "reset":
		return fromResults(provider.DownTo(ctx, 0))
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose status: %w", err)
		}
		out := make([]Result, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, Result{
				Version: st.Source.Version,
				Path:    st.Source.Path,
				Applied: st.State == goose.StateApplied,
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported migration command %q", command)
	}
}

// MigrateToVersion moves the schema up or down until it sits at the
// YYYYMMDDHHMMSS version given.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) ([]Result, error) {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil || target < 0 {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", targetVersion)
	}
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		return fromResults(provider.UpTo(ctx, target))
	default:
		return fromResults(provider.DownTo(ctx, target))
	}
}

func single(res *goose.MigrationResult) []*goose.MigrationResult {
	if res == nil {
		return nil
	}
	return []*goose.MigrationResult{res}
}

func fromResults(results []*goose.MigrationResult, err error) ([]Result, error) {
	out := make([]Result, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   res.Source.Version,
			Path:      res.Source.Path,
			Direction: res.Direction,
			Applied:   res.Error == nil,
		})
	}
	if err != nil {
		return out, fmt.Errorf("goose: %w", err)
	}
	return out, nil
}
