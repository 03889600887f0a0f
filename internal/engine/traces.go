package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/trace"
)

// tracePath returns <dir>/<owner>-<key>/<test>.trace.json. The owner is the
// plugin id, or the module's base name for library tests. key hashes the
// absolute module path and the raw plugin id, so owners that share a name
// after safeName still get their own directory.
func tracePath(dir string, req harness.Request) string {
	owner := req.PluginID
	if owner == "" {
		owner = strings.TrimSuffix(filepath.Base(req.ModulePath), filepath.Ext(req.ModulePath))
	}
	module := req.ModulePath
	if abs, err := filepath.Abs(module); err == nil {
		module = abs
	}
	h := sha256.New()
	h.Write([]byte(module))
	h.Write([]byte{0})
	h.Write([]byte(req.PluginID))
	key := hex.EncodeToString(h.Sum(nil)[:4])
	return filepath.Join(dir, safeName(owner)+"-"+key, safeName(req.TestID)+".trace.json")
}

// safeName keeps plugin ids readable while making them valid file names.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// writeTrace moves the trace captured for out into its artifact file. The
// in-memory trace is dropped either way.
func (e *Engine) writeTrace(req harness.Request, out *result.Outcome) error {
	doc := out.Trace
	out.Trace = nil
	if e.traceDir == "" || doc == nil {
		return nil
	}
	path := tracePath(e.traceDir, req)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &RunError{Code: ErrCodeTraceWrite, Message: err.Error(), Path: path}
	}
	f, err := os.Create(path)
	if err != nil {
		return &RunError{Code: ErrCodeTraceWrite, Message: err.Error(), Path: path}
	}
	if err := trace.WriteChrome(f, *doc); err != nil {
		f.Close()
		return &RunError{Code: ErrCodeTraceWrite, Message: fmt.Sprintf("encode trace: %v", err), Path: path}
	}
	if err := f.Close(); err != nil {
		return &RunError{Code: ErrCodeTraceWrite, Message: err.Error(), Path: path}
	}
	out.TracePath = path
	return nil
}
