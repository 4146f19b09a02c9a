package idgen

import "github.com/google/uuid"

// Generator produces unique identifiers.
type Generator func() string

// New returns a new globally unique identifier as string.
func New() string { return uuid.New().String() }
