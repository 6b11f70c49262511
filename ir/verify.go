package ir

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/tileir/tileir/internal/workerspool"
)

// VerifyAll verifies every op of the module and returns one error per failing
// op, in op order, annotated with the op's position. Per-op verification is
// pure, so the ops are checked concurrently on the given pool; a nil pool
// uses one sized to the number of CPUs.
func (m *Module) VerifyAll(pool *workerspool.Pool) []error {
	if pool == nil {
		pool = workerspool.Default()
	}
	errs := make([]error, len(m.Ops))
	var wg sync.WaitGroup
	wg.Add(len(m.Ops))
	for i, op := range m.Ops {
		pool.WaitToStart(func() {
			defer wg.Done()
			if err := op.Verify(); err != nil {
				errs[i] = errors.WithMessagef(err, "op #%d (%s)", i, op.OpName())
			}
		})
	}
	wg.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}
