package consumer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/audit"
	"github.com/JakeFAU/assignment-webapp/internal/event"
	archivehash "github.com/JakeFAU/assignment-webapp/internal/hash/sha256"
	"github.com/JakeFAU/assignment-webapp/internal/metrics"
	"github.com/JakeFAU/assignment-webapp/internal/notify"
)

// Terminal states.
const (
	StateSuccess = "success"
	StateFailed  = "failed"
	StateSkipped = "skipped"
)

// ArchiveContentType is set on every stored object.
const ArchiveContentType = "application/zip"

const sideEffectTimeout = 30 * time.Second

var submissionURLPattern = regexp.MustCompile(
	`^https?://(?:www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b(?:[-a-zA-Z0-9()@:%_\+.~#?&/=]*)$`,
)

// ValidURL reports whether raw looks like an http(s) locator with a host and TLD.
func ValidURL(raw string) bool {
	return submissionURLPattern.MatchString(raw)
}

// Fetcher downloads the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// BlobStore persists archives and returns their storage location.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// IDGenerator mints audit record ids.
type IDGenerator interface {
	NewRandomID() (uuid.UUID, error)
}

// Config tunes a Consumer.
type Config struct {
	// InvocationTimeout bounds the fetch and upload steps of one event.
	InvocationTimeout time.Duration
	// DedupWindow skips repeated submission ids seen within the window. Zero disables it.
	DedupWindow time.Duration
}

// Outcome describes how an event finished.
type Outcome struct {
	State    string
	Reason   string
	FileName string
	Location string
	// Checksum is the hex SHA-256 of the stored archive, set on success.
	Checksum string
}

// Consumer runs the archive pipeline for one event at a time. It is safe for
// concurrent use.
type Consumer struct {
	cfg      Config
	fetcher  Fetcher
	blobs    BlobStore
	notifier notify.Notifier
	audits   audit.Store
	ids      IDGenerator
	logger   *zap.Logger

	seenMu sync.Mutex
	seen   *ttlcache.Cache[string, struct{}]
}

// New constructs a Consumer. Call Close to release the dedup cache.
func New(
	cfg Config,
	fetcher Fetcher,
	blobs BlobStore,
	notifier notify.Notifier,
	audits audit.Store,
	ids IDGenerator,
	logger *zap.Logger,
) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{
		cfg:      cfg,
		fetcher:  fetcher,
		blobs:    blobs,
		notifier: notifier,
		audits:   audits,
		ids:      ids,
		logger:   logger.Named("consumer"),
	}
	if cfg.DedupWindow > 0 {
		c.seen = ttlcache.New(ttlcache.WithTTL[string, struct{}](cfg.DedupWindow))
		go c.seen.Start()
	}
	return c
}

// Close stops background cache maintenance.
func (c *Consumer) Close() {
	if c.seen != nil {
		c.seen.Stop()
	}
}

// Handle decodes one payload and processes it. Only malformed payloads
// return an error; business failures are reported to the student instead.
func (c *Consumer) Handle(ctx context.Context, data []byte) error {
	start := time.Now()
	ev, err := event.Decode(data)
	if err != nil {
		metrics.ObserveConsumed(StateFailed, metrics.ReasonMalformed, time.Since(start))
		c.logger.Warn("discarding malformed event", zap.Error(err))
		return err
	}
	c.Process(ctx, ev)
	return nil
}

// Process runs the pipeline for a decoded event.
func (c *Consumer) Process(ctx context.Context, ev event.SubmissionEvent) Outcome {
	start := time.Now()
	ctx, span := otel.Tracer("webapp/consumer").Start(ctx, "consumer.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.id", ev.SubmissionID),
		attribute.String("submission.attempt", ev.Attempt),
	)
	logger := c.logger.With(
		zap.String("submission_id", ev.SubmissionID),
		zap.String("assignment", ev.AssignmentName),
		zap.String("attempt", ev.Attempt),
	)

	if c.duplicate(ev.SubmissionID) {
		logger.Info("skipping duplicate event")
		metrics.ObserveConsumed(StateSkipped, metrics.ReasonDuplicate, time.Since(start))
		return Outcome{State: StateSkipped, Reason: metrics.ReasonDuplicate}
	}

	// Only the invocation ceiling ends a download; a shutting-down receiver
	// must not turn an in-flight event into a failed submission.
	runCtx := context.WithoutCancel(ctx)
	if c.cfg.InvocationTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, c.cfg.InvocationTimeout)
		defer cancel()
	}

	out, status := c.archive(runCtx, ev, logger)
	if out.State == StateFailed {
		span.SetStatus(codes.Error, out.Reason)
	}

	// Side effects run even if the invocation deadline was spent on the download.
	effCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	c.notify(effCtx, ev, out.FileName, status, logger)
	c.recordAudit(effCtx, ev, out.FileName, logger)

	metrics.ObserveConsumed(out.State, out.Reason, time.Since(start))
	logger.Info("submission processed", zap.String("state", out.State), zap.String("reason", out.Reason))
	return out
}

// archive walks the validation and upload steps and returns the outcome with
// the status line for the email.
func (c *Consumer) archive(ctx context.Context, ev event.SubmissionEvent, logger *zap.Logger) (Outcome, string) {
	failed := func(reason, status string) (Outcome, string) {
		return Outcome{State: StateFailed, Reason: reason, FileName: audit.NoFileName}, status
	}

	if !ValidURL(ev.SubmissionURL) {
		logger.Info("invalid submission url", zap.String("url", ev.SubmissionURL))
		return failed(metrics.ReasonInvalidURL, notify.InvalidURLStatus(ev.AssignmentName, ev.Attempt))
	}

	body, err := c.fetcher.Fetch(ctx, ev.SubmissionURL)
	if err == nil {
		err = checkZip(body)
	}
	if err != nil {
		logger.Info("archive check failed", zap.Error(err))
		return failed(metrics.ReasonInvalidZip, notify.InvalidZipStatus(ev.AssignmentName, ev.Attempt))
	}

	fileName := ObjectName(ev)
	location, checksum, err := c.upload(ctx, ev.SubmissionURL, fileName)
	if err != nil {
		logger.Warn("archive upload failed", zap.Error(err))
		return failed(metrics.ReasonUploadError, notify.UploadErrorStatus(ev.AssignmentName, ev.Attempt))
	}

	logger.Info("archive stored", zap.String("location", location), zap.String("sha256", checksum))
	out := Outcome{
		State:    StateSuccess,
		Reason:   metrics.ReasonNone,
		FileName: fileName,
		Location: location,
		Checksum: checksum,
	}
	return out, notify.SuccessStatus(ev.AssignmentName, ev.Attempt, location)
}

func (c *Consumer) upload(ctx context.Context, rawURL, fileName string) (string, string, error) {
	body, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", "", fmt.Errorf("download archive: %w", err)
	}
	location, err := c.blobs.PutObject(ctx, fileName, ArchiveContentType, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("store archive %s: %w", fileName, err)
	}
	return location, archivehash.Sum(body), nil
}

func (c *Consumer) notify(ctx context.Context, ev event.SubmissionEvent, fileName, status string, logger *zap.Logger) {
	msg, err := notify.Compose(notify.Details{
		AssignmentName: ev.AssignmentName,
		UserEmail:      ev.UserEmail,
		SubmissionURL:  ev.SubmissionURL,
		FileName:       fileName,
		Attempt:        ev.Attempt,
		Status:         status,
	})
	if err == nil {
		err = c.notifier.Send(ctx, msg)
	}
	if err != nil {
		metrics.ObserveNotifyFailure()
		logger.Error("notification failed", zap.Error(err))
	}
}

func (c *Consumer) recordAudit(ctx context.Context, ev event.SubmissionEvent, fileName string, logger *zap.Logger) {
	id, err := c.ids.NewRandomID()
	if err == nil {
		err = c.audits.Put(ctx, audit.Record{
			ID:                id.String(),
			Email:             ev.UserEmail,
			SubmissionAttempt: ev.Attempt,
			SubmissionURL:     ev.SubmissionURL,
			SubmissionID:      ev.SubmissionID,
			FileName:          fileName,
		})
	}
	if err != nil {
		metrics.ObserveAuditFailure()
		logger.Error("audit write failed", zap.Error(err))
	}
}

// duplicate marks id as seen and reports whether it already was.
func (c *Consumer) duplicate(id string) bool {
	if c.seen == nil {
		return false
	}
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if c.seen.Has(id) {
		return true
	}
	c.seen.Set(id, struct{}{}, ttlcache.DefaultTTL)
	return false
}

// ObjectName is the blob key for an event's archive.
func ObjectName(ev event.SubmissionEvent) string {
	return ev.SubmissionID + ev.AssignmentName + ".zip"
}

func checkZip(body []byte) error {
	if _, err := zip.NewReader(bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("not a zip archive: %w", err)
	}
	return nil
}
