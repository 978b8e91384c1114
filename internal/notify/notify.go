// Package notify composes and delivers submission status emails.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"

	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier delivers messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Details are the fields rendered into the status email.
type Details struct {
	AssignmentName string
	UserEmail      string
	SubmissionURL  string
	FileName       string
	Attempt        string
	Status         string
}

var bodyTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body>
<p><strong>Dear Student,</strong></p>
<p><strong>Here are your submission details:</strong></p>
<ul>
  <li><strong>Submission URL:</strong> {{.SubmissionURL}}</li>
  <li><strong>Submission File Name:</strong> {{.FileName}}</li>
  <li><strong>Submission Attempt:</strong> {{.Attempt}}</li>
  <li><strong>Status of the download:</strong> {{.Status}}</li>
</ul>
<p style="text-align: center;">This mail is intended to be received for {{.UserEmail}}.</p>
</body>
</html>
`))

// Compose renders the status email for d.
func Compose(d Details) (Message, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, d); err != nil {
		return Message{}, fmt.Errorf("render email body: %w", err)
	}
	return Message{
		To:      d.UserEmail,
		Subject: fmt.Sprintf("Submission notification for %s", d.AssignmentName),
		HTML:    buf.String(),
	}, nil
}

// SuccessStatus is the status line for an archived submission.
func SuccessStatus(assignment, attempt, location string) string {
	return fmt.Sprintf("File uploaded successfully for %s. This was your %s attempt. "+
		"The path to your submission's cloud storage bucket is: %s", assignment, attempt, location)
}

// InvalidURLStatus is the status line for a URL that failed the syntax check.
func InvalidURLStatus(assignment, attempt string) string {
	return fmt.Sprintf("Submission failed for %s. This was your %s attempt. "+
		"There was an error due to an invalid URL format.", assignment, attempt)
}

// InvalidZipStatus is the status line for content that is not a zip archive.
func InvalidZipStatus(assignment, attempt string) string {
	return fmt.Sprintf("Submission failed for %s. This was your %s attempt. "+
		"There was an error due to an invalid zip file upload.", assignment, attempt)
}

// UploadErrorStatus is the status line for a failed download or upload.
func UploadErrorStatus(assignment, attempt string) string {
	return fmt.Sprintf("File upload failed for %s. This was your %s attempt. "+
		"There was an error either while downloading your file or uploading it to the cloud storage bucket.",
		assignment, attempt)
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the message envelope.
func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("notification", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Int("bytes", len(msg.HTML)))
	return nil
}

// MemoryNotifier records messages for tests.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

// NewMemoryNotifier constructs a MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// FailWith makes subsequent sends fail with err.
func (n *MemoryNotifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Send records msg. A failing send is still counted as an attempt.
func (n *MemoryNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if n.err != nil {
		return fmt.Errorf("send email: %w", n.err)
	}
	return nil
}

// Sent returns every send attempt.
func (n *MemoryNotifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.sent))
	copy(out, n.sent)
	return out
}
