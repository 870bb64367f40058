// Package store persists measurement records. Each backend implements
// Executor; which statement (or table) a kind is written with is
// configuration, and kinds without one are skipped.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// ErrNoStatement is returned for records whose kind has no configured
// statement. Callers treat it as "not persisted", not as a failure.
var ErrNoStatement = errors.New("no statement configured for kind")

// Executor writes one record to a store.
type Executor interface {
	Insert(ctx context.Context, rec measurement.Record) error
	Close() error
}

// Statements maps a kind to the statement (SQL text or table name) used to
// persist it.
type Statements map[measurement.Kind]string

// ParseStatements converts a string-keyed map, as read from configuration,
// into Statements. Unknown kinds are rejected.
func ParseStatements(raw map[string]string) (Statements, error) {
	out := make(Statements, len(raw))
	for name, stmt := range raw {
		k, err := measurement.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if stmt == "" {
			continue
		}
		out[k] = stmt
	}
	return out, nil
}

// statementFor resolves the statement of rec. Generic JSON records carry
// their route's statement.
func (s Statements) statementFor(rec measurement.Record) (string, error) {
	if g, ok := rec.Measurement.(*measurement.GenericJSON); ok && g.Statement != "" {
		return g.Statement, nil
	}
	stmt, ok := s[rec.Kind]
	if !ok || stmt == "" {
		return "", fmt.Errorf("%w: %s", ErrNoStatement, rec.Kind)
	}
	return stmt, nil
}
