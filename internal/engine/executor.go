package engine

import (
	"context"

	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/result"
)

// Executor scans modules and runs single tests. worker.Runner executes in
// disposable processes; InProcess runs in the calling process.
type Executor interface {
	Scan(ctx context.Context, path string) (harness.ScanResult, error)
	Run(ctx context.Context, req harness.Request, progress harness.ProgressFunc) result.Outcome
}

// InProcess returns an Executor that runs tests directly in this process.
// A plugin that crashes takes the whole run down with it.
func InProcess(suite *harness.Suite) Executor {
	return inProcess{suite: suite}
}

type inProcess struct {
	suite *harness.Suite
}

func (e inProcess) Scan(ctx context.Context, path string) (harness.ScanResult, error) {
	return e.suite.Scan(ctx, path)
}

func (e inProcess) Run(ctx context.Context, req harness.Request, progress harness.ProgressFunc) result.Outcome {
	return e.suite.Execute(ctx, req, progress)
}
