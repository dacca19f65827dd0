package errs

import (
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"
)

// SQLite result codes we classify explicitly. Mirrors the subset the
// teacher's introspector/generator packages reason about by name rather
// than by importing the full sqlite3 header.
const (
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteConstraint = 19
	sqliteCorrupt    = 11
	sqliteNotADB     = 26
)

// Classify turns a raw engine error into a taxonomy *Error. Anything already
// wrapped in our own *Error passes through unchanged; any other error that
// neither its sqlite result code nor its message identifies is wrapped as
// Unexpected, matching §7's "Unexpected wraps unknown engine errors with
// original message" rule.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if As(err, &existing) {
		return err
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqliteBusy, sqliteLocked:
			return Wrap(EngineLocked, op, err)
		case sqliteConstraint:
			return Wrap(ConstraintViolation, op, err)
		case sqliteCorrupt, sqliteNotADB:
			return Wrap(BackupCorrupt, op, err)
		}
	}

	// modernc.org/sqlite sometimes surfaces busy/locked purely in the
	// message text when wrapped by database/sql (e.g. driver.ErrBadConn
	// paths); fall back to a text sniff before giving up.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "sqlite_busy"):
		return Wrap(EngineLocked, op, err)
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "constraint failed"), strings.Contains(msg, "foreign key"):
		return Wrap(ConstraintViolation, op, err)
	}

	return Wrap(Unexpected, op, err)
}

// IsLocked reports whether err classifies as an engine-locked condition,
// the only automatically-retried failure per §4.4/§5.
func IsLocked(err error) bool {
	return Is(Classify("", err), EngineLocked)
}
