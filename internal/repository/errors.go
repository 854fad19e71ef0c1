// Package repository defines the MySQL-backed stores for account metadata,
// consents and registered service providers, plus sentinel errors reused
// across them.  Higher layers translate these into CDS errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Handlers should
// translate this into an HTTP 404 (Resource:NotFound) response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be applied because of the
// current state, such as revoking a consent that is already revoked.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
