package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQueue(t *testing.T) {
	runQueueContract(t, func(t *testing.T, clock *fakeClock, visibility time.Duration) Queue {
		_, client := newTestRedis(t)
		return NewRedisQueue(client, RedisOptions{VisibilityTimeout: visibility, Now: clock.Now})
	})
}

func TestRedisQueue_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	clock := newFakeClock()
	q := NewRedisQueue(client, RedisOptions{Now: clock.Now})

	job, err := q.Enqueue(ctx, QueuePayment, JobTypeProcessPayment, PaymentJob{PaymentID: "pay_abc"})
	require.NoError(t, err)

	assert.True(t, mr.Exists("jobqueue:job:"+job.ID))
	members, err := mr.ZMembers("jobqueue:payment-processing:waiting")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, member(job), members[0])

	claimed, err := q.Dequeue(ctx, QueuePayment)
	require.NoError(t, err)

	active, err := mr.ZMembers("jobqueue:payment-processing:active")
	require.NoError(t, err)
	assert.Equal(t, []string{member(claimed)}, active)

	require.NoError(t, q.Complete(ctx, claimed))
	assert.Equal(t, JobTTL, mr.TTL("jobqueue:job:"+job.ID))
	assert.Equal(t, "1", mr.HGet("jobqueue:payment-processing:stats", "completed"))
}

func TestRedisQueue_MissingBodyIsDropped(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	q := NewRedisQueue(client, RedisOptions{})

	job, err := q.Enqueue(ctx, QueueRefund, JobTypeProcessRefund, RefundJob{RefundID: "rfnd_1"})
	require.NoError(t, err)
	mr.Del("jobqueue:job:" + job.ID)

	_, err = q.Dequeue(ctx, QueueRefund)
	assert.ErrorIs(t, err, ErrJobNotFound)

	counts, err := q.Counts(ctx, QueueRefund)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}

func TestMemberJobID(t *testing.T) {
	assert.Equal(t, "3f1c", memberJobID("00000000000000000042:3f1c"))
	assert.Equal(t, "plain", memberJobID("plain"))
}
