// Package chunk stitches a file split across many small remote objects back
// into one rangeable byte stream.
//
// Chunks are walked in index order. Chunks wholly before the requested range
// are skipped without a fetch and the walk stops after the range end, so only
// the chunks overlapping the range are ever downloaded. Each fetch is retried
// under a retry.Policy; a chunk that still fails aborts the stream.
package chunk

import (
	"context"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/metrics"
	"github.com/zzenonn/zgate/internal/retry"
)

// Source is the message store holding the chunks. Both calls may fail
// transiently and are retried by the reconstructor.
type Source interface {
	ResolvePath(ctx context.Context, remoteID string) (string, error)
	FetchPath(ctx context.Context, path string) ([]byte, error)
}

// Reconstructor turns a ChunkSet into a byte stream.
type Reconstructor struct {
	source Source
	policy retry.Policy
	window int
}

// NewReconstructor creates a reconstructor. window is the number of chunks
// fetched ahead of the one being written; 1 or less fetches strictly one
// chunk at a time.
func NewReconstructor(source Source, policy retry.Policy, window int) *Reconstructor {
	if window < 1 {
		window = 1
	}
	return &Reconstructor{
		source: source,
		policy: policy,
		window: window,
	}
}

// Segment is the part of one chunk that belongs to a range: bytes [From, To)
// of the chunk.
type Segment struct {
	Chunk domain.ChunkDescriptor
	From  int64
	To    int64
}

// Whole reports whether the segment covers the entire chunk.
func (s Segment) Whole() bool {
	return s.From == 0 && s.To == s.Chunk.Size
}

func (s Segment) slice(data []byte) []byte {
	if s.Whole() && int64(len(data)) == s.Chunk.Size {
		return data
	}
	to := min(s.To, int64(len(data)))
	from := min(s.From, to)
	return data[from:to]
}

// Validate checks the chunk list before anything is fetched and returns the
// file size. declared is the chunk count recorded at upload; 0 means unknown.
func Validate(set domain.ChunkSet, declared int) (int64, error) {
	if len(set) == 0 {
		return 0, zerrors.ErrNoChunks
	}
	if declared > 0 && declared != len(set) {
		return 0, &zerrors.ChunkCountError{Expected: declared, Actual: len(set)}
	}
	for i, c := range set {
		if c.Index != i {
			return 0, fmt.Errorf("%w: chunk at position %d has index %d", zerrors.ErrChunkIntegrity, i, c.Index)
		}
		if c.Size < 0 {
			return 0, fmt.Errorf("%w: chunk %d has negative size", zerrors.ErrChunkIntegrity, c.Index)
		}
	}
	return set.TotalSize(), nil
}

// Plan lists the segments needed to serve rng, in index order.
func Plan(set domain.ChunkSet, rng domain.RangeRequest) []Segment {
	var segments []Segment
	var position int64

	for _, c := range set {
		if position+c.Size <= rng.Start {
			position += c.Size
			continue
		}
		if position > rng.End {
			break
		}

		segments = append(segments, Segment{
			Chunk: c,
			From:  max(0, rng.Start-position),
			To:    min(c.Size, rng.End-position+1),
		})
		position += c.Size
	}
	return segments
}

// Open returns a reader producing the bytes of rng. Chunks are fetched lazily
// as the reader is consumed. A chunk that cannot be fetched makes Read return
// an error; closing the reader abandons any fetch in flight.
func (r *Reconstructor) Open(ctx context.Context, set domain.ChunkSet, rng domain.RangeRequest) io.ReadCloser {
	segments := Plan(set, rng)

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		err := r.stream(ctx, pw, segments)
		if err != nil {
			log.WithError(err).Warn("chunk stream aborted")
		}
		pw.CloseWithError(err)
	}()

	return &streamReader{PipeReader: pr, cancel: cancel}
}

type streamReader struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (s *streamReader) Close() error {
	s.cancel()
	return s.PipeReader.Close()
}

func (r *Reconstructor) stream(ctx context.Context, w io.Writer, segments []Segment) error {
	if r.window > 1 {
		return r.streamWindow(ctx, w, segments)
	}

	for _, seg := range segments {
		data, err := r.FetchChunk(ctx, seg.Chunk)
		if err != nil {
			return err
		}
		if _, err := w.Write(seg.slice(data)); err != nil {
			return err
		}
	}
	return nil
}

type fetchResult struct {
	data []byte
	err  error
}

// streamWindow keeps up to r.window fetches running while writing results
// strictly in segment order.
func (r *Reconstructor) streamWindow(ctx context.Context, w io.Writer, segments []Segment) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan fetchResult, len(segments))
	for i := range results {
		results[i] = make(chan fetchResult, 1)
	}
	slots := make(chan struct{}, r.window)

	go func() {
		for i, seg := range segments {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(out chan<- fetchResult, c domain.ChunkDescriptor) {
				data, err := r.FetchChunk(ctx, c)
				out <- fetchResult{data: data, err: err}
			}(results[i], seg.Chunk)
		}
	}()

	for i, seg := range segments {
		var res fetchResult
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		<-slots

		if res.err != nil {
			return res.err
		}
		if _, err := w.Write(seg.slice(res.data)); err != nil {
			return err
		}
	}
	return nil
}

// FetchChunk downloads one chunk under the retry policy. A size different
// from the descriptor is logged and tolerated.
func (r *Reconstructor) FetchChunk(ctx context.Context, c domain.ChunkDescriptor) ([]byte, error) {
	var data []byte

	err := r.policy.Do(ctx, func(attempt int) error {
		start := time.Now()
		path, err := r.source.ResolvePath(ctx, c.RemoteID)
		if err == nil {
			data, err = r.source.FetchPath(ctx, path)
		}
		if err != nil {
			metrics.RecordChunkFetch("error", time.Since(start))
			return err
		}
		metrics.RecordChunkFetch("ok", time.Since(start))

		if c.Size > 0 && int64(len(data)) != c.Size {
			log.WithFields(log.Fields{
				"chunk":    c.Index,
				"expected": c.Size,
				"actual":   len(data),
			}).Warn("chunk size mismatch")
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"chunk":   c.Index,
			"attempt": attempt,
			"wait":    wait,
		}).WithError(err).Warn("chunk fetch attempt failed")
	})
	if err != nil {
		metrics.RecordChunkFetch("exhausted", 0)
		return nil, fmt.Errorf("%w %d after retries: %v", zerrors.ErrChunkFetch, c.Index, err)
	}
	return data, nil
}
