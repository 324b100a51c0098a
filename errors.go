package recordb

import "fmt"

// ParameterBindError is returned when a query is given the wrong
// number, or an unsupported type, of bound parameters.
type ParameterBindError struct {
	SQL    string
	Reason string
}

func (e *ParameterBindError) Error() string {
	return fmt.Sprintf("recordb: parameter bind error for %q: %s", e.SQL, e.Reason)
}

// QueryParseError wraps an error the embedded SQL engine reported
// while parsing a query string.
type QueryParseError struct {
	SQL string
	Err error
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("recordb: query parse error for %q: %v", e.SQL, e.Err)
}

func (e *QueryParseError) Unwrap() error { return e.Err }

// QueryExecError wraps an error the embedded SQL engine reported
// while executing an already-parsed query.
type QueryExecError struct {
	SQL string
	Err error
}

func (e *QueryExecError) Error() string {
	return fmt.Sprintf("recordb: query exec error for %q: %v", e.SQL, e.Err)
}

func (e *QueryExecError) Unwrap() error { return e.Err }

// UnknownTableError is returned by facade APIs given a table name no
// store is registered under.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("recordb: unknown table %q", e.Table)
}

// RecordNotFoundError is returned by the boolean-ok lookups' sibling
// APIs when the caller wants an error rather than a found flag, and
// the key was absent or its first matching entry (lowest sequence) is
// tombstoned; later entries with the same key are not consulted.
type RecordNotFoundError struct {
	Table  string
	Column string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("recordb: no live record in %q with %q matching the lookup key", e.Table, e.Column)
}

// NoExtractorError is surfaced on read paths that need a value back
// from a table with no field extractor configured.
type NoExtractorError struct {
	Table string
}

func (e *NoExtractorError) Error() string {
	return fmt.Sprintf("recordb: table %q has no field extractor configured", e.Table)
}
