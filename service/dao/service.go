// Package dao defines the storage contract used for scheduler records such
// as task profiles.
package dao

import (
	"context"
)

// Service stores records of T keyed by K
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	// List returns records matching every parameter
	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// Parameter is a named List filter
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter returns a filter on name; several values match any of them
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}
