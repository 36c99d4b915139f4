package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueueEnqueueConsume(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, Job{TaskID: "t1", ChannelName: "market-outlook"}))

	deliveries, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		require.Equal(t, "t1", d.Job.TaskID)
		require.NoError(t, d.Ack(ctx))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryQueueNackRedelivers(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, Job{TaskID: "t2"}))

	deliveries, err := q.Consume(ctx)
	require.NoError(t, err)

	first := <-deliveries
	require.Equal(t, "t2", first.Job.TaskID)
	require.NoError(t, first.Nack(ctx))

	select {
	case second := <-deliveries:
		require.Equal(t, "t2", second.Job.TaskID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for redelivery")
	}
}

func TestMemoryQueueClosedEnqueueFails(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), Job{TaskID: "t3"})
	require.ErrorIs(t, err, ErrQueueClosed)
}
