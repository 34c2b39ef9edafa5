package executor

import (
	"sync"

	"github.com/caffeineduck/starbridge/hostfunc"
)

// TestExecutor provides a shared executor for tests that only need the
// default capabilities. Use GetTestExecutor() to get the shared instance.
var (
	testExecutor     *Executor
	testExecutorOnce sync.Once
	testExecutorErr  error
)

// GetTestExecutor returns a shared executor for testing. The executor is
// created once and reused.
func GetTestExecutor() (*Executor, error) {
	testExecutorOnce.Do(func() {
		registry := hostfunc.NewRegistry()
		testExecutor, testExecutorErr = New(registry)
	})
	return testExecutor, testExecutorErr
}

// CloseTestExecutor closes the shared test executor.
// Call this in TestMain if needed, but typically not necessary.
func CloseTestExecutor() {
	if testExecutor != nil {
		testExecutor.Close()
		testExecutor = nil
		testExecutorOnce = sync.Once{} // Reset for next test run
	}
}
