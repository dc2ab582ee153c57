package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"legacy2norm/internal/checkpoint"
)

type fakeCounter map[string]int64

func (c fakeCounter) CountTagged(ctx context.Context, collection, tag string) (int64, error) {
	return c[collection+"/"+tag], nil
}

func newVerifyRunner(counts fakeCounter) *Runner {
	return New(fakeOpener{}, counts, checkpoint.NewMemoryStore(), nil, nil, nil, zap.NewNop())
}

func TestDeriveSourceTag(t *testing.T) {
	assert.Equal(t, "legacyusers", DeriveSourceTag("legacyUsersStep"))
	assert.Equal(t, "communityposts", DeriveSourceTag("communityPostsStep"))
	// No trailing suffix to strip: the whole name is lowercased, which is
	// why composite steps should pass an explicit tag instead.
	assert.Equal(t, "plantlogsstep_carelogs", DeriveSourceTag("plantLogsStep_carelogs"))
}

func TestVerifyStepMatch(t *testing.T) {
	r := newVerifyRunner(fakeCounter{"users/legacyusers": 1200})
	expected := int64(1200)

	v, err := r.VerifyStep(context.Background(), "legacyUsersStep", "users", VerifyOptions{
		ExpectedCount: &expected,
	})
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Empty(t, v.Mismatches)
	assert.Equal(t, int64(1200), v.TargetCount)
	assert.Equal(t, "legacyusers", v.SourceTag)
}

func TestVerifyStepMismatch(t *testing.T) {
	r := newVerifyRunner(fakeCounter{"users/legacyusers": 1190})
	expected := int64(1200)

	v, err := r.VerifyStep(context.Background(), "legacyUsersStep", "users", VerifyOptions{
		ExpectedCount: &expected,
	})
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	require.Len(t, v.Mismatches, 1)
	assert.Contains(t, v.Mismatches[0], "expected 1200")
	assert.Contains(t, v.Mismatches[0], "found 1190")
}

func TestVerifyStepExplicitTag(t *testing.T) {
	r := newVerifyRunner(fakeCounter{"logs/carelogs": 40})

	v, err := r.VerifyStep(context.Background(), "plantLogsStep_carelogs", "logs", VerifyOptions{
		SourceTag: "carelogs",
	})
	require.NoError(t, err)
	assert.Equal(t, "carelogs", v.SourceTag)
	assert.Equal(t, int64(40), v.TargetCount)
	// Advisory only: with no expectation there is nothing to mismatch.
	assert.True(t, v.IsValid)
}

func TestVerifyStepNoCounter(t *testing.T) {
	r := New(fakeOpener{}, nil, checkpoint.NewMemoryStore(), nil, nil, nil, zap.NewNop())

	_, err := r.VerifyStep(context.Background(), "legacyUsersStep", "users", VerifyOptions{})
	require.Error(t, err)
}
