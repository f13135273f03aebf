// Package bulk implements the Bulk Ingest Pipeline: a
// three-stage streaming NDJSON loader with back-pressure, wired with
// buffered channels and golang.org/x/sync/errgroup.
package bulk

import (
	"bufio"
	"context"
	"io"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/handle"
	"github.com/cuemby/loom/pkg/metrics"
)

// PipelineReceiveTimeout is the pipeline's nominal per-receive timeout.
// The stages in this package do not apply it: each receive ends when a
// value arrives, its channel closes, or the pipeline's context is
// cancelled, and that context is what keeps the pipeline cancellable.
const PipelineReceiveTimeout = 100 * time.Millisecond

// Config tunes the pipeline; JSONParsingThreads defaults to
// runtime.NumCPU() when zero.
type Config struct {
	JSONParsingThreads int
}

// Result reports how many lines the writer staged (all committed when
// Err is nil, all discarded otherwise) and the first error encountered,
// if any.
type Result struct {
	LinesIndexed int
	Err          error
}

// Load streams body (NDJSON, one document per line) into target,
// staging each parsed document with commit=false and committing once
// at the end, after the stream is fully drained.
func Load(ctx context.Context, target handle.Handle, body io.Reader, cfg Config) Result {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BulkIngestDuration)

	threads := cfg.JSONParsingThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte, 1024)
	docs := make(chan document.AddDocument, 1024)
	errCh := make(chan error, 1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		return splitLines(gctx, body, lines)
	})

	var parseWG sync.WaitGroup
	parseWG.Add(threads)
	for i := 0; i < threads; i++ {
		go func() {
			defer parseWG.Done()
			runParser(gctx, lines, docs, errCh)
		}()
	}
	g.Go(func() error {
		parseWG.Wait()
		close(docs)
		return nil
	})

	var indexed int
	g.Go(func() error {
		n, err := runWriter(gctx, target, docs)
		indexed = n
		return err
	})

	runErr := g.Wait()
	metrics.BulkIngestLinesTotal.Add(float64(indexed))
	select {
	case parseErr := <-errCh:
		if parseErr != nil {
			return Result{LinesIndexed: indexed, Err: parseErr}
		}
	default:
	}
	return Result{LinesIndexed: indexed, Err: runErr}
}

// splitLines reads body in 32KB chunks, carrying a partial-line buffer
// across reads, and sends each complete line on lines.
func splitLines(ctx context.Context, body io.Reader, lines chan<- []byte) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 32*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errs.IOError(err)
	}
	return nil
}

// runParser validates UTF-8 and wraps each line as an AddDocument;
// parsing against the schema happens later, in the writer's
// target.AddDocument call. It keeps draining its input after a UTF-8
// error so upstream senders never deadlock; only the first error is
// reported.
func runParser(ctx context.Context, lines <-chan []byte, docs chan<- document.AddDocument, errCh chan<- error) {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !utf8.Valid(line) {
				reportFirst(errCh, errs.IOError(errUTF8))
				continue
			}
			add := document.AddDocument{Document: append([]byte(nil), line...)}
			select {
			case docs <- add:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

var errUTF8 = errInvalidUTF8{}

type errInvalidUTF8 struct{}

func (errInvalidUTF8) Error() string { return "invalid UTF-8 in bulk ingest line" }

func reportFirst(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}

// runWriter sets catalog.BulkIngestLock for the duration of the
// stream, stages each document via target.AddDocument(commit=false),
// and commits once at EOF. On error or cancellation, every document
// staged so far is rolled back via target.DiscardBatch() — the batch
// is discarded by replacing it with a fresh one, equivalent to
// rollback, so a partial stream never commits a subset of itself.
func runWriter(ctx context.Context, target handle.Handle, docs <-chan document.AddDocument) (int, error) {
	catalog.BulkIngestLock.Store(true)
	defer catalog.BulkIngestLock.Store(false)

	var n int
	for {
		select {
		case doc, ok := <-docs:
			if !ok {
				if n == 0 {
					return n, nil
				}
				if _, err := target.Commit(); err != nil {
					target.DiscardBatch()
					return n, err
				}
				return n, nil
			}
			if err := target.AddDocument(doc); err != nil {
				target.DiscardBatch()
				return n, err
			}
			n++
		case <-ctx.Done():
			target.DiscardBatch()
			return n, ctx.Err()
		}
	}
}
