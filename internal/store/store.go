// Package store persists leads, the suppression list and ingestion run
// history.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/model"
)

// DefaultListLimit is the number of leads shown when no limit is given.
const DefaultListLimit = 500

// Store defines the persistence interface for leads and suppression.
//
// Upsert is insert-if-absent keyed on email: the first write wins and later
// writes for the same email are no-ops. Write failures other than context
// cancellation are logged and absorbed so one bad row never aborts a run.
type Store interface {
	// Leads
	Upsert(ctx context.Context, lead model.Lead) (bool, error)
	UpsertBatch(ctx context.Context, leads []model.Lead) (int, error)
	ListByScore(ctx context.Context, limit int) ([]model.Lead, error)
	ListAll(ctx context.Context) ([]model.Lead, error)
	Count(ctx context.Context) (int, error)

	// Suppression
	Suppress(ctx context.Context, email string) error
	IsSuppressed(ctx context.Context, email string) (bool, error)
	CountSuppressed(ctx context.Context) (int, error)
	Candidates(ctx context.Context) ([]string, error)

	// Runs
	CreateRun(ctx context.Context, queries []string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, result *model.RunResult) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// normalizeSuppression lowercases and validates an address for the
// suppression list.
func normalizeSuppression(email string) (string, error) {
	e := model.NormalizeEmail(email)
	if !model.ValidEmail(e) {
		return "", &model.InputError{Field: "email", Value: strings.TrimSpace(email), Msg: "not a valid email address"}
	}
	return e, nil
}

// prepareLead applies the persistence caps and checks the uniqueness key.
func prepareLead(l model.Lead) (model.Lead, error) {
	l.Email = strings.TrimSpace(l.Email)
	if !model.ValidEmail(l.Email) {
		return l, eris.Errorf("store: invalid lead email %q", l.Email)
	}
	l.Name = model.Truncate(l.Name, model.MaxNameLen)
	l.Address = model.Truncate(l.Address, model.MaxAddressLen)
	if l.Source == "" {
		l.Source = model.SourceScrape
	}
	if l.Score < 0 {
		l.Score = 0
	}
	return l, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
