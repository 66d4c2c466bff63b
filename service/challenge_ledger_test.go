package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*ChallengeLedger, *recordingRenderer, func(time.Duration)) {
	t.Helper()
	mr, st := newRedisStore(t)
	renderer := &recordingRenderer{}
	ledger, err := NewChallengeLedger(st, renderer, DefaultLedgerConfig())
	require.NoError(t, err)
	return ledger, renderer, mr.FastForward
}

func TestChallengeLedgerIssue(t *testing.T) {
	ctx := context.Background()
	mr, st := newRedisStore(t)
	renderer := &recordingRenderer{}
	ledger, err := NewChallengeLedger(st, renderer, DefaultLedgerConfig())
	require.NoError(t, err)

	issued, err := ledger.Issue(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, "data:image/png;base64,stub", issued.Payload)

	solution := renderer.last()
	require.Len(t, solution, 6)
	for _, ch := range solution {
		assert.True(t, strings.ContainsRune(solutionAlphabet, ch), "unexpected character %q", ch)
	}

	stored, err := mr.Get(challengeKey(issued.ID))
	require.NoError(t, err)
	assert.Equal(t, hashSolution(solution), stored)
	assert.NotContains(t, stored, solution)
	assert.Equal(t, 120*time.Second, mr.TTL(challengeKey(issued.ID)))
}

func TestChallengeLedgerVerifyIsSingleUse(t *testing.T) {
	ctx := context.Background()
	ledger, renderer, _ := newTestLedger(t)

	issued, err := ledger.Issue(ctx)
	require.NoError(t, err)

	ok, err := ledger.Verify(ctx, issued.ID, renderer.last())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Verify(ctx, issued.ID, renderer.last())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChallengeLedgerWrongAnswerConsumes(t *testing.T) {
	ctx := context.Background()
	ledger, renderer, _ := newTestLedger(t)

	issued, err := ledger.Issue(ctx)
	require.NoError(t, err)

	ok, err := ledger.Verify(ctx, issued.ID, "zzzzzz"+renderer.last())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.Verify(ctx, issued.ID, renderer.last())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChallengeLedgerNormalizesAnswer(t *testing.T) {
	ctx := context.Background()
	ledger, renderer, _ := newTestLedger(t)

	issued, err := ledger.Issue(ctx)
	require.NoError(t, err)

	ok, err := ledger.Verify(ctx, issued.ID, "  "+strings.ToUpper(renderer.last())+"\t")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChallengeLedgerExpires(t *testing.T) {
	ctx := context.Background()
	ledger, renderer, fastForward := newTestLedger(t)

	issued, err := ledger.Issue(ctx)
	require.NoError(t, err)

	fastForward(121 * time.Second)

	ok, err := ledger.Verify(ctx, issued.ID, renderer.last())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChallengeLedgerRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	ledger, renderer, _ := newTestLedger(t)

	issued, err := ledger.Issue(ctx)
	require.NoError(t, err)

	for _, tc := range []struct{ id, answer string }{
		{"", renderer.last()},
		{issued.ID, ""},
		{issued.ID, "   "},
		{"not-a-uuid", renderer.last()},
	} {
		ok, err := ledger.Verify(ctx, tc.id, tc.answer)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	// Rejected input must not consume the challenge
	ok, err := ledger.Verify(ctx, issued.ID, renderer.last())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChallengeLedgerFailsClosed(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewChallengeLedger(brokenStore{}, &recordingRenderer{}, DefaultLedgerConfig(), WithStoreTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = ledger.Issue(ctx)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	ok, err := ledger.Verify(ctx, "4b0f1c0e-5a39-4a49-9d4c-8b8f0f6e2a11", "abcdef")
	assert.False(t, ok)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestNewChallengeLedgerValidates(t *testing.T) {
	_, st := newRedisStore(t)

	_, err := NewChallengeLedger(nil, &recordingRenderer{}, DefaultLedgerConfig())
	assert.Error(t, err)
	_, err = NewChallengeLedger(st, nil, DefaultLedgerConfig())
	assert.Error(t, err)
	_, err = NewChallengeLedger(st, &recordingRenderer{}, LedgerConfig{})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestChallengeLedgerConcurrentVerifySucceedsOnce(t *testing.T) {
	ctx := context.Background()
	ledger, renderer, _ := newTestLedger(t)

	issued, err := ledger.Issue(ctx)
	require.NoError(t, err)
	solution := renderer.last()

	const workers = 50
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Verify(ctx, issued.ID, solution)
			assert.NoError(t, err)
			if ok {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}
