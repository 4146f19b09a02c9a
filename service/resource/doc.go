// Package resource tracks named capacity pools and the reservations held by
// running submissions. A Manager is owned by a single scheduler and is not
// safe for concurrent use on its own.
package resource
