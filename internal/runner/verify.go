package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TargetCounter counts documents in a target collection carrying a given
// source tag.
type TargetCounter interface {
	CountTagged(ctx context.Context, collection, tag string) (int64, error)
}

// VerifyOptions controls a VerifyStep invocation. SourceTag should be set
// explicitly per step; when empty the tag is derived from the step name
// via DeriveSourceTag, which breaks down for composite step names.
type VerifyOptions struct {
	SourceTag     string
	ExpectedCount *int64
}

// Verification is the advisory outcome of a post-migration count check.
// No repair or rollback happens here.
type Verification struct {
	Step             string
	TargetCollection string
	SourceTag        string
	TargetCount      int64
	IsValid          bool
	Mismatches       []string
}

// DeriveSourceTag maps a step name to the source tag its documents are
// expected to carry: the trailing "Step" suffix is stripped and the rest
// lowercased, so "legacyUsersStep" becomes "legacyusers".
func DeriveSourceTag(step string) string {
	return strings.ToLower(strings.TrimSuffix(step, "Step"))
}

// VerifyStep counts target documents tagged for the step and compares the
// count against the expectation, if one was given.
func (r *Runner) VerifyStep(ctx context.Context, step, targetCollection string, opts VerifyOptions) (*Verification, error) {
	if r.targets == nil {
		return nil, errors.New("runner has no target counter configured")
	}

	tag := opts.SourceTag
	if tag == "" {
		tag = DeriveSourceTag(step)
	}

	count, err := r.targets.CountTagged(ctx, targetCollection, tag)
	if err != nil {
		return nil, errors.Wrapf(err, "step %s: counting target collection %s", step, targetCollection)
	}

	v := &Verification{
		Step:             step,
		TargetCollection: targetCollection,
		SourceTag:        tag,
		TargetCount:      count,
		IsValid:          true,
	}

	if opts.ExpectedCount != nil && count != *opts.ExpectedCount {
		v.IsValid = false
		v.Mismatches = append(v.Mismatches, fmt.Sprintf(
			"%s: expected %d documents tagged %q, found %d",
			targetCollection, *opts.ExpectedCount, tag, count,
		))
	}

	r.logger.Info("Step verified",
		zap.String("step", step),
		zap.String("target", targetCollection),
		zap.String("source_tag", tag),
		zap.Int64("target_count", count),
		zap.Bool("is_valid", v.IsValid),
	)
	return v, nil
}
