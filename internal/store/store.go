package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
)

// Namespace partitions the key space. Each entry is a JSON document.
type Namespace string

const (
	NamespaceTests       Namespace = "tests"
	NamespaceAssignments Namespace = "assignments"
	NamespaceResults     Namespace = "results"
)

// AssignmentKey identifies an assignment by (test, user).
type AssignmentKey struct {
	TestID string
	UserID string
}

func (k AssignmentKey) String() string {
	return k.TestID + "/" + k.UserID
}

// ResultKey identifies a variant result by (test, variant).
type ResultKey struct {
	TestID    string
	VariantID string
}

func (k ResultKey) String() string {
	return k.TestID + "/" + k.VariantID
}

// ResponseKey is the results-namespace key for a response-id lookup.
func ResponseKey(responseID string) string {
	return "response/" + responseID
}

// WinnerKey is the tests-namespace key for a promoted-winner snapshot.
func WinnerKey(responseType string) string {
	return "winner/" + responseType
}

// Gateway is a durable key-value store with optimistic concurrency.
// Get returns the current version alongside the value; CompareAndSet
// succeeds only when the stored version matches, with version 0 meaning
// "the key must not exist yet" (create-only). Implementations must be
// safe for concurrent use.
type Gateway interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, uint64, error)
	Set(ctx context.Context, ns Namespace, key string, value []byte) error
	CompareAndSet(ctx context.Context, ns Namespace, key string, value []byte, version uint64) error
	Delete(ctx context.Context, ns Namespace, key string) error
	List(ctx context.Context, ns Namespace) (map[string][]byte, error)
	Close() error
}
