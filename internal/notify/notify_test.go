package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestComposeRendersDetails(t *testing.T) {
	t.Parallel()

	msg, err := Compose(Details{
		AssignmentName: "HW1",
		UserEmail:      "jane@example.com",
		SubmissionURL:  "https://example.com/hw1.zip?a=1&b=<2>",
		FileName:       "abcHW1.zip",
		Attempt:        "1/3",
		Status:         SuccessStatus("HW1", "1/3", "gs://bucket/abcHW1.zip"),
	})
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", msg.To)
	require.Equal(t, "Submission notification for HW1", msg.Subject)
	require.Contains(t, msg.HTML, "<li><strong>Submission File Name:</strong> abcHW1.zip</li>")
	require.Contains(t, msg.HTML, "<li><strong>Submission Attempt:</strong> 1/3</li>")
	require.Contains(t, msg.HTML, "This mail is intended to be received for jane@example.com.")
	require.Contains(t, msg.HTML, "&amp;b=&lt;2&gt;")
	require.Contains(t, msg.HTML, "gs://bucket/abcHW1.zip")
}

func TestStatusLines(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"Submission failed for HW1. This was your 2/3 attempt. There was an error due to an invalid URL format.",
		InvalidURLStatus("HW1", "2/3"))
	require.Equal(t,
		"Submission failed for HW1. This was your 2/3 attempt. There was an error due to an invalid zip file upload.",
		InvalidZipStatus("HW1", "2/3"))
	require.Equal(t,
		"File upload failed for HW1. This was your 2/3 attempt. There was an error either while downloading "+
			"your file or uploading it to the cloud storage bucket.",
		UploadErrorStatus("HW1", "2/3"))
	require.Equal(t,
		"File uploaded successfully for HW1. This was your 1/1 attempt. The path to your submission's cloud "+
			"storage bucket is: gs://b/x.zip",
		SuccessStatus("HW1", "1/1", "gs://b/x.zip"))
}

func TestNotifiers(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewLogNotifier(zap.NewNop()).Send(context.Background(), Message{To: "a@b.c"}))

	mem := NewMemoryNotifier()
	require.NoError(t, mem.Send(context.Background(), Message{To: "a@b.c"}))
	mem.FailWith(errors.New("relay down"))
	require.Error(t, mem.Send(context.Background(), Message{To: "a@b.c"}))
	require.Len(t, mem.Sent(), 2)
}
