// Package timeslice records how long the phases of thunk construction take.
//
// Every recorded duration feeds an in-process summary. When a stream is
// opened with StartRecording the raw records are also written out in a
// compact binary form readable by ReadAllRecords.
package timeslice

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	Magic   uint32 = 0x54484b54 // "THKT"
	Version uint32 = 1
)

const streamAlign = 4096

type header struct {
	Magic       uint32
	Version     uint32
	KindsLength uint32
}

type TimesliceID uint64

const InvalidTimesliceID = TimesliceID(0)

type kind struct {
	name  string
	count atomic.Uint64
	total atomic.Int64
	max   atomic.Int64
}

var (
	registerMu sync.Mutex
	// kinds is indexed by TimesliceID-1 and replaced wholesale on register.
	kinds atomic.Pointer[[]*kind]
)

// RegisterKind adds a named kind. Register kinds from package level vars.
func RegisterKind(name string) TimesliceID {
	registerMu.Lock()
	defer registerMu.Unlock()

	var current []*kind
	if p := kinds.Load(); p != nil {
		current = *p
	}
	next := append(slices.Clip(current), &kind{name: name})
	kinds.Store(&next)
	return TimesliceID(len(next))
}

func lookup(id TimesliceID) *kind {
	p := kinds.Load()
	if p == nil || id == InvalidTimesliceID || int(id) > len(*p) {
		return nil
	}
	return (*p)[id-1]
}

type record struct {
	ID       TimesliceID
	Duration int64
}

var recordSize = binary.Size(record{})

type writer struct {
	w                   io.Writer
	writeThreadComplete chan error
	writerChan          chan record
}

func (w *writer) run() {
	defer close(w.writeThreadComplete)

	var buf [streamAlign]byte
	off := 0

	for rec := range w.writerChan {
		if off+recordSize > len(buf) {
			if _, err := w.w.Write(buf[:off]); err != nil {
				w.writeThreadComplete <- err
				return
			}
			off = 0
		}
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(rec.ID))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(rec.Duration))
		off += recordSize
	}

	if off > 0 {
		if _, err := w.w.Write(buf[:off]); err != nil {
			w.writeThreadComplete <- err
			return
		}
	}

	w.writeThreadComplete <- nil
}

func (w *writer) Close() error {
	// Only the goroutine that wins the swap closes the channel.
	if !currentWriter.CompareAndSwap(w, nil) {
		return fmt.Errorf("timeslice: already closed")
	}

	close(w.writerChan)

	if err := <-w.writeThreadComplete; err != nil {
		return fmt.Errorf("timeslice: write thread: %w", err)
	}
	return nil
}

var currentWriter atomic.Pointer[writer]

// Recorder measures consecutive phases. It is not safe for concurrent use.
type Recorder struct {
	last time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{last: time.Now()}
}

// Record attributes the time since the previous call (or NewRecorder) to id.
func (r *Recorder) Record(id TimesliceID) {
	now := time.Now()
	Record(id, now.Sub(r.last))
	r.last = now
}

func Record(id TimesliceID, duration time.Duration) {
	if k := lookup(id); k != nil {
		ns := duration.Nanoseconds()
		k.count.Add(1)
		k.total.Add(ns)
		for {
			cur := k.max.Load()
			if ns <= cur || k.max.CompareAndSwap(cur, ns) {
				break
			}
		}
	}
	if w := currentWriter.Load(); w != nil {
		w.writerChan <- record{ID: id, Duration: duration.Nanoseconds()}
	}
}

// KindSummary aggregates every duration recorded for one kind.
type KindSummary struct {
	Name  string
	Count uint64
	Total time.Duration
	Max   time.Duration
}

func (s KindSummary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Summary returns the kinds that have at least one record, in registration
// order.
func Summary() []KindSummary {
	p := kinds.Load()
	if p == nil {
		return nil
	}
	var out []KindSummary
	for _, k := range *p {
		n := k.count.Load()
		if n == 0 {
			continue
		}
		out = append(out, KindSummary{
			Name:  k.name,
			Count: n,
			Total: time.Duration(k.total.Load()),
			Max:   time.Duration(k.max.Load()),
		})
	}
	return out
}

// ResetSummary zeroes every counter.
func ResetSummary() {
	p := kinds.Load()
	if p == nil {
		return
	}
	for _, k := range *p {
		k.count.Store(0)
		k.total.Store(0)
		k.max.Store(0)
	}
}

// StartRecording streams every subsequent record to w until the returned
// closer is closed. Only one stream may be open at a time.
func StartRecording(w io.Writer) (io.Closer, error) {
	if currentWriter.Load() != nil {
		return nil, fmt.Errorf("timeslice: already open")
	}

	var names []string
	if p := kinds.Load(); p != nil {
		for _, k := range *p {
			names = append(names, k.name)
		}
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("timeslice: marshal kinds: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, header{
		Magic:       Magic,
		Version:     Version,
		KindsLength: uint32(len(encoded)),
	}); err != nil {
		return nil, fmt.Errorf("timeslice: write header: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return nil, fmt.Errorf("timeslice: write kinds: %w", err)
	}

	off := binary.Size(header{}) + len(encoded)
	if pad := padding(off); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return nil, fmt.Errorf("timeslice: write padding: %w", err)
		}
	}

	wr := &writer{
		w:                   w,
		writerChan:          make(chan record, streamAlign),
		writeThreadComplete: make(chan error),
	}
	if !currentWriter.CompareAndSwap(nil, wr) {
		return nil, fmt.Errorf("timeslice: already open")
	}
	go wr.run()

	return wr, nil
}

func padding(off int) int {
	if off%streamAlign == 0 {
		return 0
	}
	return streamAlign - off%streamAlign
}

// ReadAllRecords decodes a stream written by StartRecording.
func ReadAllRecords(r io.Reader, fn func(kind string, duration time.Duration) error) error {
	buf := bufio.NewReaderSize(r, streamAlign)

	var hdr header
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("timeslice: read header: %w", err)
	}
	if hdr.Magic != Magic {
		return fmt.Errorf("timeslice: invalid magic %#x", hdr.Magic)
	}
	if hdr.Version != Version {
		return fmt.Errorf("timeslice: unsupported version %d", hdr.Version)
	}

	var names []string
	dec := json.NewDecoder(io.LimitReader(buf, int64(hdr.KindsLength)))
	if err := dec.Decode(&names); err != nil {
		return fmt.Errorf("timeslice: decode kinds: %w", err)
	}

	if pad := padding(int(hdr.KindsLength) + binary.Size(hdr)); pad > 0 {
		if _, err := buf.Discard(pad); err != nil {
			return fmt.Errorf("timeslice: skip padding: %w", err)
		}
	}

	for {
		var rec record
		if err := binary.Read(buf, binary.LittleEndian, &rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("timeslice: read record: %w", err)
		}
		if rec.ID == InvalidTimesliceID || int(rec.ID) > len(names) {
			return fmt.Errorf("timeslice: unknown kind %d", rec.ID)
		}
		if err := fn(names[rec.ID-1], time.Duration(rec.Duration)); err != nil {
			return err
		}
	}
}
