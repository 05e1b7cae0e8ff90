package fitstab

import (
	"log"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/highz-obs/filterbank/daq"
)

// SinkSnapshot is a point-in-time view of sink progress for the status server.
type SinkSnapshot struct {
	Written  int    `json:"filesWritten"`
	Failed   int    `json:"writesFailed"`
	Bytes    int64  `json:"bytesWritten"`
	LastFile string `json:"lastFile"`
}

// Sink is the consumer half of the pipeline: it drains the engine's pending
// channel and serializes each buffer. A failed write loses that sweep and is
// logged; the sink never stops the process.
type Sink struct {
	Writer *Writer

	mu    sync.Mutex
	stats SinkSnapshot
}

// Stats returns a copy of the sink's progress counters.
func (s *Sink) Stats() SinkSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run consumes buffers until the pending channel closes, returning each one
// through release after the write completes or fails. It is intended to run
// as the process's second goroutine.
func (s *Sink) Run(pending <-chan *daq.Buffer, release func(*daq.Buffer)) {
	for buf := range pending {
		path, n, err := s.Writer.WriteBuffer(buf)
		s.mu.Lock()
		if err != nil {
			s.stats.Failed++
			s.mu.Unlock()
			log.Printf("sweep lost: %v", err)
		} else {
			s.stats.Written++
			s.stats.Bytes += n
			s.stats.LastFile = path
			s.mu.Unlock()
			log.Printf("wrote %s (%s, %d rows)", path, humanize.IBytes(uint64(n)), buf.Cap())
		}
		release(buf)
	}
}
