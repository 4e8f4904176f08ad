package storage

import "errors"

// ErrObjectNotFound reports a missing object key. Callers that treat a
// missing artifact as empty data check for it with errors.Is.
var ErrObjectNotFound = errors.New("object not found")
