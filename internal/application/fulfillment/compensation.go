package fulfillment

import (
	"context"
	"errors"
	"fmt"
)

type compensation struct {
	op   string
	undo func(ctx context.Context) error
}

// compensator is an undo stack for writes made on stores without transactional
// rollback. On atomic stores it records nothing.
type compensator struct {
	atomic bool
	steps  []compensation
}

func newCompensator(atomic bool) *compensator {
	return &compensator{atomic: atomic}
}

func (c *compensator) push(op string, undo func(ctx context.Context) error) {
	if c.atomic {
		return
	}
	c.steps = append(c.steps, compensation{op: op, undo: undo})
}

func (c *compensator) empty() bool {
	return len(c.steps) == 0
}

func (c *compensator) len() int {
	return len(c.steps)
}

// run executes every undo step in reverse order. A failing step does not stop the rest.
func (c *compensator) run(ctx context.Context) error {
	var errs []error
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.op, err))
		}
	}
	c.steps = nil
	return errors.Join(errs...)
}
