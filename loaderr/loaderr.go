// Package loaderr defines the failure kinds shared by the generator and the
// loader, and maps them to process exit codes.
package loaderr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMalformedRow: a CSV field failed type coercion or the row shape is wrong.
	KindMalformedRow
	// KindConstraintViolation: the store rejected a batch.
	KindConstraintViolation
	// KindConnection: the store is unreachable or the connection broke.
	KindConnection
	// KindGenerationExhausted: the unique sampler ran out of attempts before reaching its target.
	KindGenerationExhausted
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRow:
		return "malformed row"
	case KindConstraintViolation:
		return "constraint violation"
	case KindConnection:
		return "connection"
	case KindGenerationExhausted:
		return "generation exhausted"
	default:
		return "unknown"
	}
}

// Error is a tagged failure. Op names what was being done ("orders.csv line 12",
// "insert into OrderItem"), Code carries a driver specific error code when known.
type Error struct {
	Kind Kind
	Op   string
	Code string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// MalformedRow reports a row that could not be coerced. line is 1-based and
// counts the header.
func MalformedRow(file string, line int, err error) error {
	return &Error{Kind: KindMalformedRow, Op: fmt.Sprintf("%s line %d", file, line), Err: err}
}

// ConstraintViolation reports a batch rejected by the store.
func ConstraintViolation(table, code string, err error) error {
	return &Error{Kind: KindConstraintViolation, Op: "insert into " + table, Code: code, Err: err}
}

// Connection reports an unreachable store or a broken connection.
func Connection(op string, err error) error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// GenerationExhausted reports a sampler that stopped short of its target.
func GenerationExhausted(what string, accepted, requested, attempts int) error {
	return &Error{
		Kind: KindGenerationExhausted,
		Op:   what,
		Err:  fmt.Errorf("generated %d of %d requested after %d attempts", accepted, requested, attempts),
	}
}

// KindOf returns the kind of the first tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps err to the process exit status. nil maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindMalformedRow:
		return 2
	case KindConstraintViolation:
		return 3
	case KindConnection:
		return 4
	case KindGenerationExhausted:
		return 5
	default:
		return 1
	}
}
