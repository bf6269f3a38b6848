// Package operations implements the mutating commands a user can run against
// the working copy, together with their preview and optimistic projections.
package operations

import (
	"time"

	"github.com/compozy/stackops/internal/domain"
)

// Option customises how an operation is constructed.
type Option func(*options)

type options struct {
	gen    domain.IDGenerator
	runner domain.CommandRunner
	now    func() time.Time
}

// WithIDGenerator replaces the random id source, e.g. for deterministic tests.
func WithIDGenerator(gen domain.IDGenerator) Option {
	return func(o *options) { o.gen = gen }
}

// WithRunner routes the operation to a different executor.
func WithRunner(r domain.CommandRunner) Option {
	return func(o *options) { o.runner = r }
}

// WithClock sets the clock used to date optimistic commits.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		gen:    domain.DefaultIDGenerator,
		runner: domain.RunnerPrimary,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newBase(name string, event domain.TrackEventName, o options) domain.Base {
	return domain.NewBase(name, event, o.runner, o.gen)
}
