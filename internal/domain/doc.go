// Package domain holds the entities shared by the webapp and the submission
// pipeline (accounts, assignments, submissions) together with the error
// taxonomy every layer wraps its failures in. It must not import storage,
// transport or cloud clients.
package domain
