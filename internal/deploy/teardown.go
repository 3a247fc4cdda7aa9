package deploy

import (
	"context"
	"errors"
	"slices"

	"github.com/chainguard-dev/clog"
)

type (
	// teardown accumulates the undo steps of a deploy in creation order.
	teardown struct {
		steps []step
	}
	step struct {
		name    string
		destroy func(ctx context.Context) error
	}
)

// push adds an undo step, to be run in the reverse order steps were added.
func (t *teardown) push(name string, destroy func(ctx context.Context) error) {
	t.steps = append(t.steps, step{name: name, destroy: destroy})
}

// run calls every step in reverse order, returning all encountered errors
// joined. A failing step does not stop the ones after it.
func (t *teardown) run(ctx context.Context) error {
	log := clog.FromContext(ctx)

	var errs error
	for _, s := range slices.Backward(t.steps) {
		log.Debug("rolling back", "step", s.name)
		if err := s.destroy(ctx); err != nil {
			log.Error("rollback step failed", "step", s.name, "error", err)
			errs = errors.Join(errs, err)
		}
	}
	t.steps = nil
	return errs
}
