package ingest

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// FailureClass separates store errors a client should retry from those it
// should drop.
type FailureClass int

const (
	Transient FailureClass = iota
	Deterministic
)

func (c FailureClass) String() string {
	if c == Deterministic {
		return "deterministic"
	}
	return "transient"
}

// Classify maps a write error to a failure class by SQLSTATE class:
// 22 data exception, 23 integrity constraint violation and 42 syntax or
// access rule violation are deterministic. Everything else, including
// errors that carry no SQLSTATE, is transient.
func Classify(err error) (FailureClass, string) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return Transient, ""
	}
	code := pgErr.Code
	if len(code) >= 2 {
		switch code[:2] {
		case "22", "23", "42":
			return Deterministic, code
		}
	}
	return Transient, code
}
