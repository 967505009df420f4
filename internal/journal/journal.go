// ============================================================================
// Custodian Attempt Journal
// ============================================================================
//
// Package: internal/journal
// File: journal.go
// Purpose: An append-only, checksummed, batch-flushed event log recording
// every attempt-start, correction, and job-completion the supervisor
// produces. Built on the write-ahead-log pattern (append, batched flush,
// replay), scaled down for a single supervisor process driving one job
// sequence rather than a worker pool dispatching many concurrent jobs.
//
// Why this exists alongside custodian.json:
//   custodian.json is overwritten wholesale once each job finishes, so
//   a crash between writes loses everything since the last one. The
//   journal appends one line per event and fsyncs each batch, so a
//   crash mid-attempt still leaves a durable record of every completed
//   correction up to that point - Replay reconstructs exactly how far
//   the run got.
//
// Batch Write:
//   Events accumulate in a small in-memory batch and are flushed
//   together (one fsync per batch) on whichever comes first: the batch
//   filling up, or flushInterval elapsing. A supervisor emits events at
//   human/process timescales (attempts, corrections), not network
//   request rates, so the batching here exists mainly to avoid an
//   fsync per line rather than to chase high throughput.
//
// ============================================================================

package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	defaultBufferSize    = 8
	defaultFlushInterval = 50 * time.Millisecond
)

type appendRequest struct {
	event Event
	errCh chan error
}

// Journal is an append-only event log backed by a single file.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	path    string
	seq     uint64

	appendChan    chan appendRequest
	bufferSize    int
	flushInterval time.Duration
	closed        chan struct{}
	wg            sync.WaitGroup
	isClosed      bool
}

// Open creates or appends to the journal file at path. If the file
// already has events, the sequence counter resumes from the last one.
func Open(path string) (*Journal, error) {
	return OpenWithBatch(path, defaultBufferSize, defaultFlushInterval)
}

// OpenWithBatch is Open with explicit batch tuning.
func OpenWithBatch(path string, bufferSize int, flushInterval time.Duration) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}

	seq, err := lastSeq(path)
	if err != nil {
		file.Close()
		return nil, err
	}

	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	j := &Journal{
		file:          file,
		encoder:       json.NewEncoder(file),
		path:          path,
		seq:           seq,
		appendChan:    make(chan appendRequest, bufferSize*2),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		closed:        make(chan struct{}),
	}

	j.wg.Add(1)
	go j.batchWriter()

	return j, nil
}

// lastSeq scans path for the highest Seq among well-formed events,
// tolerating a truncated final line (a crash mid-write).
func lastSeq(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("journal: opening %s for seq scan: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var last uint64
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			break
		}
		if verifyChecksum(e) && e.Seq > last {
			last = e.Seq
		}
	}
	return last, nil
}

// Append records a new event and blocks until its batch has been
// fsynced (or the journal is closed).
func (j *Journal) Append(eventType EventType, job, handler string, attempt int) error {
	j.mu.Lock()
	j.seq++
	seq := j.seq
	j.mu.Unlock()

	e := Event{
		Seq:       seq,
		Type:      eventType,
		Job:       job,
		Handler:   handler,
		Attempt:   attempt,
		Timestamp: time.Now().UnixMilli(),
	}
	e.Checksum = calculateChecksum(e)

	errCh := make(chan error, 1)
	select {
	case j.appendChan <- appendRequest{event: e, errCh: errCh}:
		return <-errCh
	case <-j.closed:
		return fmt.Errorf("journal: closed")
	}
}

func (j *Journal) batchWriter() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	batch := make([]appendRequest, 0, j.bufferSize)

	for {
		select {
		case req := <-j.appendChan:
			batch = append(batch, req)
			if len(batch) >= j.bufferSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-j.closed:
			if len(batch) > 0 {
				j.flush(batch)
			}
			return
		}
	}
}

func (j *Journal) flush(batch []appendRequest) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var flushErr error
	for i := range batch {
		if err := j.encoder.Encode(batch[i].event); err != nil {
			flushErr = fmt.Errorf("journal: encoding event: %w", err)
			break
		}
	}
	if flushErr == nil {
		flushErr = j.file.Sync()
	}
	for i := range batch {
		batch[i].errCh <- flushErr
		close(batch[i].errCh)
	}
}

// Replay reads every well-formed event from the start of the journal
// and calls handler for each in sequence order, stopping at the first
// error returned by handler. A corrupted trailing line (checksum
// mismatch or truncation) ends replay without error, since that is the
// expected shape of a journal whose last batch was cut off by a crash.
func (j *Journal) Replay(handler EventHandler) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("journal: opening %s for replay: %w", j.path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for {
		var e Event
		err := dec.Decode(&e)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return nil
		}
		if !verifyChecksum(e) {
			return nil
		}
		if err := handler(e); err != nil {
			return err
		}
	}
}

// Close flushes any pending batch and closes the underlying file. The
// Journal must not be used after Close.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.isClosed {
		j.mu.Unlock()
		return nil
	}
	j.isClosed = true
	j.mu.Unlock()

	close(j.closed)
	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// LastSeq returns the most recently assigned sequence number.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}
