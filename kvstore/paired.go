package kvstore

import (
	"context"

	"github.com/flowforge/pipeline/errs"
)

// Paired composes two stores that are written and read together under the
// same key, e.g. a job's raw input alongside its derived summary. Load
// tolerates either side being absent; it fails only if both are.
type Paired struct {
	Left, Right Store
}

// NewPaired constructs a Paired store over left and right.
func NewPaired(left, right Store) *Paired {
	return &Paired{Left: left, Right: right}
}

// PairedValue holds whichever sides of a Paired load succeeded.
type PairedValue struct {
	Left, Right       []byte
	HasLeft, HasRight bool
}

// Load reads key from both sides. A Kind errs.NotExist on one side is
// tolerated (that side's HasX stays false); any other error, or both
// sides missing, is returned as-is.
func (p *Paired) Load(ctx context.Context, key string) (PairedValue, error) {
	var out PairedValue

	left, err := p.Left.Load(ctx, key)
	switch {
	case err == nil:
		out.Left, out.HasLeft = left, true
	case errs.Is(err, errs.NotExist):
		// tolerated
	default:
		return out, err
	}

	right, err := p.Right.Load(ctx, key)
	switch {
	case err == nil:
		out.Right, out.HasRight = right, true
	case errs.Is(err, errs.NotExist):
		// tolerated
	default:
		return out, err
	}

	if !out.HasLeft && !out.HasRight {
		return out, errs.NewNotExist(key, nil)
	}
	return out, nil
}

// Write writes whichever of v's sides are present to their respective
// store.
func (p *Paired) Write(ctx context.Context, key string, v PairedValue) error {
	if v.HasLeft {
		if err := p.Left.Write(ctx, key, v.Left); err != nil {
			return err
		}
	}
	if v.HasRight {
		if err := p.Right.Write(ctx, key, v.Right); err != nil {
			return err
		}
	}
	return nil
}
