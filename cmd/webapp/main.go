// Package main hosts the webapp service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, assignment CRUD and
//     the submission endpoint behind HTTP Basic auth. Handlers delegate to the
//     assignment and submission services.
//   - Admission: a submission is counted, admitted and inserted in one
//     repository transaction that locks the caller's account row, so concurrent
//     attempts cannot exceed num_of_attempts.
//   - Events: admitted submissions are published to Pub/Sub, or, with the memory
//     backend, to a bounded in-process queue drained by a fixed worker pool.
//   - Consumer: each event is URL-checked, downloaded and verified as a zip,
//     downloaded again and stored as "{submissionId}{assignmentName}.zip", then
//     the student is emailed and an audit record is written to Redis.
//   - Configuration & plumbing: Viper reads WEBAPP_* env and an optional file;
//     zap logs; Prometheus metrics on /metrics; OpenTelemetry trace context rides
//     on Pub/Sub attributes.
//
// Run locally with everything in memory:
//
//	WEBAPP_ACCOUNTS_SEED_FILE=users.csv go run ./cmd/webapp serve
package main

import "github.com/JakeFAU/assignment-webapp/cmd"

func main() {
	cmd.Execute()
}
