package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candidatewatch/internal/domain"
)

func TestMemoryTaskEnqueueDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryTask()

	id1, created, err := s.Enqueue(ctx, domain.KindNewsMention, 7, 50)
	require.NoError(t, err)
	assert.True(t, created)

	// Same record again: no second task, priority lowered to the minimum.
	id2, created, err := s.Enqueue(ctx, domain.KindNewsMention, 7, 30)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	task, ok := s.Get(id1)
	require.True(t, ok)
	assert.Equal(t, 30, task.Priority)

	// A worse priority must not raise it back.
	_, created, err = s.Enqueue(ctx, domain.KindNewsMention, 7, 90)
	require.NoError(t, err)
	assert.False(t, created)
	task, _ = s.Get(id1)
	assert.Equal(t, 30, task.Priority)

	// Same id under a different kind is distinct work.
	_, created, err = s.Enqueue(ctx, domain.KindSocialMention, 7, 50)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMemoryTaskClaimBatchOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryTask()

	_, _, err := s.Enqueue(ctx, domain.KindNewsMention, 1, 50)
	require.NoError(t, err)
	_, _, err = s.Enqueue(ctx, domain.KindNewsMention, 2, 10)
	require.NoError(t, err)
	_, _, err = s.Enqueue(ctx, domain.KindNewsMention, 3, 50)
	require.NoError(t, err)

	claimed, err := s.ClaimBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	// Best priority first, then insertion order among equals.
	assert.Equal(t, int64(2), claimed[0].SourceID)
	assert.Equal(t, int64(1), claimed[1].SourceID)
	for _, task := range claimed {
		assert.Equal(t, domain.TaskInProgress, task.State)
	}

	// The rest stays queued for the next drain.
	remaining, err := s.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(3), remaining[0].SourceID)

	empty, err := s.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryTaskTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryTask()

	id, _, err := s.Enqueue(ctx, domain.KindSocialMention, 42, 50)
	require.NoError(t, err)

	// Transitions require a prior claim.
	assert.Error(t, s.MarkDone(ctx, id))

	claimed, err := s.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, s.Requeue(ctx, id, 1, 60, "model timeout"))
	task, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.TaskQueued, task.State)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, 60, task.Priority)
	assert.Equal(t, "model timeout", task.LastError)

	_, err = s.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, id, 3, "gave up"))
	task, _ = s.Get(id)
	assert.Equal(t, domain.TaskFailed, task.State)
	assert.Equal(t, 3, task.Attempts)
	assert.Equal(t, "gave up", task.LastError)

	// Terminal states never come back.
	assert.Error(t, s.MarkDone(ctx, id))
	claimedAgain, err := s.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimedAgain)
}
