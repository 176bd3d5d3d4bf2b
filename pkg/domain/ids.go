package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "healthcommons/pkg/domain-errors"
)

// Identifiers coming from the host graph are opaque agent or pool keys, so
// they are strings rather than UUIDs. Each type is distinct so a pool key can
// never be passed where a patient key is expected.
type (
	// PatientID identifies a data contributor.
	PatientID string
	// PoolID identifies an aggregate data pool with its own privacy parameters.
	PoolID string
	// QueryID identifies a single aggregate query execution.
	QueryID uuid.UUID
)

const maxKeyLength = 128

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

func parseKey(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxKeyLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	if strings.TrimSpace(s) != s || !keyPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" contains invalid characters")
	}
	return s, nil
}

// ParsePatientID validates a patient key from external input.
func ParsePatientID(s string) (PatientID, error) {
	key, err := parseKey("patient_id", s)
	if err != nil {
		return "", err
	}
	return PatientID(key), nil
}

// ParsePoolID validates a pool key from external input.
func ParsePoolID(s string) (PoolID, error) {
	key, err := parseKey("pool_id", s)
	if err != nil {
		return "", err
	}
	return PoolID(key), nil
}

// ParseQueryID parses a query UUID. The nil UUID is rejected.
func ParseQueryID(s string) (QueryID, error) {
	if s == "" {
		return QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "query_id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return QueryID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid query_id")
	}
	if parsed == uuid.Nil {
		return QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "query_id cannot be nil")
	}
	return QueryID(parsed), nil
}

// NewQueryID returns a random query ID.
func NewQueryID() QueryID {
	return QueryID(uuid.New())
}

func (id PatientID) String() string { return string(id) }
func (id PoolID) String() string    { return string(id) }
func (id QueryID) String() string   { return uuid.UUID(id).String() }

// IsNil reports whether the query ID is unset.
func (id QueryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets QueryID appear in JSON as a UUID string.
func (id QueryID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses a UUID string. An empty value leaves the ID nil.
func (id *QueryID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = QueryID{}
		return nil
	}
	parsed, err := ParseQueryID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
