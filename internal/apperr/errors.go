// Package apperr defines the error taxonomy shared by every stage of a run.
//
// Each kind corresponds to an isolation boundary: configuration errors abort the
// whole run, connection and export errors isolate one database, catalog query
// errors isolate one table or schema, and publish errors isolate one document
// family.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the unit of work it isolates.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindConnection
	KindCatalogQuery
	KindExport
	KindPublish
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindCatalogQuery:
		return "catalog_query"
	case KindExport:
		return "export"
	case KindPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrConfig       = errors.New("configuration error")
	ErrConnection   = errors.New("connection error")
	ErrCatalogQuery = errors.New("catalog query error")
	ErrExport       = errors.New("export error")
	ErrPublish      = errors.New("publish error")
)

// Error wraps a cause with the operation and unit it happened in.
type Error struct {
	Kind Kind
	Op   string
	Unit string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s %s [%s]: %v", e.Kind, e.Op, e.Unit, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrCatalogQuery:
		return e.Kind == KindCatalogQuery
	case ErrExport:
		return e.Kind == KindExport
	case ErrPublish:
		return e.Kind == KindPublish
	}
	return false
}

func newError(kind Kind, op, unit string, err error) *Error {
	return &Error{Kind: kind, Op: op, Unit: unit, Err: err}
}

// Config creates a configuration error. These are fatal to the run.
func Config(op string, err error) *Error {
	return newError(KindConfig, op, "", err)
}

// Connection creates an error for a database that could not be reached.
func Connection(database string, err error) *Error {
	return newError(KindConnection, "connect", database, err)
}

// CatalogQuery creates an error for a failed introspection query.
func CatalogQuery(op, unit string, err error) *Error {
	return newError(KindCatalogQuery, op, unit, err)
}

// Export creates an error for a failed artifact write.
func Export(op, unit string, err error) *Error {
	return newError(KindExport, op, unit, err)
}

// Publish creates an error for a failed wiki operation.
func Publish(op, unit string, err error) *Error {
	return newError(KindPublish, op, unit, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
