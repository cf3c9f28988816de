package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

// goose keeps its dialect and base FS in package state.
var gooseMu sync.Mutex

// Runner applies goose migrations from fsys to a postgres database.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
}

func NewRunner(db *sql.DB, fsys fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = Embedded()
	}
	return &Runner{db: db, fsys: fsys}, nil
}

// Run executes a goose command such as up, down or status.
func (r *Runner) Run(ctx context.Context, command string, args ...string) error {
	return r.locked(func() error {
		if err := goose.RunContext(ctx, command, r.db, ".", args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateTo moves the schema up or down to target.
func (r *Runner) MigrateTo(ctx context.Context, target int64) error {
	return r.locked(func() error {
		current, err := goose.GetDBVersion(r.db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current < target:
			err = goose.UpToContext(ctx, r.db, ".", target)
		case current > target:
			err = goose.DownToContext(ctx, r.db, ".", target)
		}
		if err != nil {
			return fmt.Errorf("migrate from %d to %d: %w", current, target, err)
		}
		return nil
	})
}

func (r *Runner) locked(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(r.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn()
}
