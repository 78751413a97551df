package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrParse               = errors.New("query parse error")
	ErrUnresolved          = errors.New("unresolved reference")
	ErrIndexIO             = errors.New("index i/o error")
	ErrTransactionState    = errors.New("illegal transaction state")
	ErrRollbackOnly        = errors.New("transaction marked rollback only")
	ErrReadOnly            = errors.New("read-only")
	ErrUnsupportedLanguage = errors.New("unsupported query language")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// ParseError reports malformed query text in one of the query languages.
type ParseError struct {
	Language string
	Fragment string
	Pos      int
	Msg      string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("%s: %s at offset %d: %s", ErrParse, e.Language, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s at offset %d near %q: %s", ErrParse, e.Language, e.Pos, e.Fragment, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// NewParseError builds a ParseError for language at pos.
func NewParseError(language, fragment string, pos int, format string, args ...any) *ParseError {
	return &ParseError{
		Language: language,
		Fragment: fragment,
		Pos:      pos,
		Msg:      fmt.Sprintf(format, args...),
	}
}

// UnresolvedError lists every identifier that could not be resolved in a
// single pass (unknown types, properties, missing query parameters).
type UnresolvedError struct {
	Kind  string
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrUnresolved, e.Kind, strings.Join(e.Names, ", "))
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolved
}

// Unresolved returns an UnresolvedError for names of the given kind.
func Unresolved(kind string, names ...string) *UnresolvedError {
	return &UnresolvedError{Kind: kind, Names: names}
}

// IndexIO wraps an index read/write failure.
func IndexIO(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIndexIO, op, err)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrParse),
		errors.Is(err, ErrUnresolved), errors.Is(err, ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransactionState), errors.Is(err, ErrRollbackOnly):
		return http.StatusConflict
	case errors.Is(err, ErrReadOnly):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
