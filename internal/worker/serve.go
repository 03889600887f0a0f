package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/harness"
)

// File descriptors of the control pipes in the worker process.
const (
	requestFD  = 3
	responseFD = 4
)

// Serve handles exactly one request read from in and writes the reply
// frames to out. Run requests produce any number of progress frames
// followed by one result frame.
func Serve(ctx context.Context, in io.Reader, out io.Writer, suite *harness.Suite) error {
	f, err := ReadFrame(in)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	fw := &frameWriter{w: out}

	switch f.Kind {
	case KindRun:
		var req harness.Request
		if err := f.Decode(&req); err != nil {
			return err
		}
		progress := func(stage string) {
			// A broken pipe means the parent is gone; the result write
			// below reports it.
			_ = fw.write(KindProgress, Progress{Stage: stage})
		}
		outcome := suite.Execute(ctx, req, progress)
		return fw.write(KindResult, outcome)

	case KindScan:
		var req ScanRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		res, err := suite.Scan(ctx, req.Path)
		if err != nil {
			return fw.write(KindError, errorMessage(err))
		}
		return fw.write(KindScanResult, res)

	default:
		return fmt.Errorf("unexpected %s frame as request", f.Kind)
	}
}

// ServeFDs runs Serve on the control pipes the runner passes to worker
// processes.
func ServeFDs(ctx context.Context, suite *harness.Suite) error {
	in := os.NewFile(requestFD, "clapval-request")
	out := os.NewFile(responseFD, "clapval-response")
	if in == nil || out == nil {
		return errors.New("worker: control pipes are not open; the worker must be started by clapval")
	}
	defer in.Close()
	defer out.Close()
	return Serve(ctx, in, out, suite)
}

func errorMessage(err error) ErrorMessage {
	var setup *abi.SetupError
	if errors.As(err, &setup) {
		msg := setup.Message
		if setup.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, setup.Err)
		}
		return ErrorMessage{SetupKind: string(setup.Kind), Path: setup.Path, Message: msg}
	}
	return ErrorMessage{Message: err.Error()}
}

// Err converts the message back into an error.
func (m ErrorMessage) Err() error {
	if m.SetupKind != "" {
		return &abi.SetupError{Kind: abi.SetupErrorKind(m.SetupKind), Path: m.Path, Message: m.Message}
	}
	return errors.New(m.Message)
}
