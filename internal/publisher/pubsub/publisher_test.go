package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/assignment-webapp/internal/event"
)

func newTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "submissions")
	require.NoError(t, err)
	return srv, topic
}

func TestPublishSetsSubjectAndPayload(t *testing.T) {
	t.Parallel()

	srv, topic := newTopic(t)
	pub := New(topic)
	defer pub.Stop()

	ev := event.SubmissionEvent{
		SubmissionID:   uuid.NewString(),
		AssignmentName: "HW1",
		UserEmail:      "jane@example.com",
		SubmissionURL:  "https://example.com/hw1.zip",
		Attempt:        "1/3",
	}
	id, err := pub.Publish(context.Background(), ev)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, event.Subject, msgs[0].Attributes[SubjectAttribute])
	got, err := event.Decode(msgs[0].Data)
	require.NoError(t, err)
	require.Equal(t, ev, got)
}

func TestPublishRejectsMalformedEvent(t *testing.T) {
	t.Parallel()

	srv, topic := newTopic(t)
	pub := New(topic)
	defer pub.Stop()

	_, err := pub.Publish(context.Background(), event.SubmissionEvent{AssignmentName: "HW1"})
	require.ErrorIs(t, err, event.ErrMalformed)
	require.Empty(t, srv.Messages())
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), event.SubmissionEvent{})
	require.Error(t, err)
}
