// Package signatures holds the immutable set of known-malicious content
// digests that every scanner consults.
package signatures

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DigestHexLen is the length of a lowercase hex encoded SHA-256 digest.
const DigestHexLen = 64

// ErrMalformedSignature indicates a line in the signature source that is not
// a 64 character hex digest.
var ErrMalformedSignature = errors.New("malformed signature")

// LoadError reports a signature source that could not be read or parsed.
// It is the only failure that prevents a scan from starting.
type LoadError struct {
	Source string
	Line   int // 0 when the failure is not tied to a line
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load signatures from %s: line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("load signatures from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Database is an immutable set of lowercase hex digests. After construction
// it is never written, so concurrent readers need no synchronization.
type Database struct {
	source string
	hashes map[string]struct{}
}

// Load parses one digest per line from r. Surrounding whitespace is trimmed;
// blank lines and lines starting with '#' are ignored. Any other line that is
// not a 64 character hex string fails the whole load.
func Load(source string, r io.Reader) (*Database, error) {
	db := &Database{source: source, hashes: make(map[string]struct{})}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		digest, err := Normalize(line)
		if err != nil {
			return nil, &LoadError{Source: source, Line: lineNo, Err: err}
		}
		db.hashes[digest] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}

	return db, nil
}

// New builds a database directly from digests. It is intended for tests and
// callers that already hold parsed signatures.
func New(source string, digests ...string) (*Database, error) {
	return Load(source, strings.NewReader(strings.Join(digests, "\n")))
}

// Normalize lowercases a hex digest and validates its shape.
func Normalize(digest string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(digest))
	if len(d) != DigestHexLen {
		return "", fmt.Errorf("%w: want %d hex characters, got %d", ErrMalformedSignature, DigestHexLen, len(d))
	}
	if _, err := hex.DecodeString(d); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return d, nil
}

// Lookup reports whether digest is a known signature. The digest is
// lowercased before the lookup; malformed input simply never matches.
func (db *Database) Lookup(digest string) bool {
	_, ok := db.hashes[strings.ToLower(strings.TrimSpace(digest))]
	return ok
}

// Len returns the number of distinct signatures.
func (db *Database) Len() int { return len(db.hashes) }

// Source names where the signatures were loaded from.
func (db *Database) Source() string { return db.source }
