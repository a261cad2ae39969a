// Package rpc provides the OutputWriter that every component uses to emit
// both human-facing progress lines and structured log events, replacing the
// ad-hoc print statements of the source implementation with one explicit
// event emitter passed down the call graph instead of a global logger.
package rpc

import (
	"io"
	"io/ioutil"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spyroot/benchctl/pkg/logging"
)

// OutputWriter combines a structured logger with a plain io.Writer sink for
// artifact-bound text (warm-up logs, CSV rows, kernel cmdline dumps). One
// OutputWriter is created per Experiment and further scoped per Pair or
// Sampler via With.
type OutputWriter struct {
	sync.Mutex
	*zap.SugaredLogger

	out io.Writer
}

var _ io.Writer = (*OutputWriter)(nil)

// New returns an OutputWriter whose structured logs go to the process-wide
// logger and whose raw writes go to w.
func New(w io.Writer) *OutputWriter {
	return &OutputWriter{
		SugaredLogger: logging.S(),
		out:           w,
	}
}

// NewFileScoped returns an OutputWriter that additionally tees structured
// logs into the file at path, used by the verb commands to leave a
// per-verb event log ("<results-dir>/<verb>.log") under the results
// directory.
func NewFileScoped(path string) (*OutputWriter, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(zapcore.AddSync(f))
	return &OutputWriter{
		SugaredLogger: logger.Sugar(),
		out:           f,
	}, func() { _ = f.Close() }, nil
}

// Discard returns an OutputWriter that drops everything; used by tests and
// by collaborators that have no run context yet.
func Discard() *OutputWriter {
	return &OutputWriter{
		SugaredLogger: zap.NewNop().Sugar(),
		out:           ioutil.Discard,
	}
}

// With returns a copy of ow with additional structured key/value pairs
// attached to every subsequent log line, mirroring zap's With semantics.
func (ow *OutputWriter) With(args ...interface{}) *OutputWriter {
	return &OutputWriter{
		SugaredLogger: ow.SugaredLogger.With(args...),
		out:           ow.out,
	}
}

// Write implements io.Writer over the raw sink, guarded by this
// OutputWriter's mutex so concurrent writes through it don't tear lines.
// Copies returned by With carry their own mutex.
func (ow *OutputWriter) Write(p []byte) (int, error) {
	ow.Lock()
	defer ow.Unlock()
	return ow.out.Write(p)
}
