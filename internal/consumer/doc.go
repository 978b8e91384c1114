// Package consumer processes submission events: it checks the submitted URL,
// verifies that the locator serves a zip archive, copies the archive into the
// blob store, emails the student and records an audit entry.
//
// Every well-formed event ends in exactly one notification attempt and one
// audit write. Malformed payloads are rejected with event.ErrMalformed and
// produce neither.
package consumer
