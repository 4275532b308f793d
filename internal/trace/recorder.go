// Package trace keeps a bounded history of data-plane events for post
// mortem inspection. Records are packed into a byte ring; when it is full
// the oldest entries are overwritten.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/notifier"
)

// ComponentTrace is the error component name for this package.
const ComponentTrace = "trace"

// entrySize is the packed size of one record:
// time(8) value(8) amount(4) offset(4) source(2) id(1) pad(5).
const entrySize = 32

// DefaultCapacity is the entry count used when none is configured.
const DefaultCapacity = 4096

// Entry is one recorded event.
type Entry struct {
	Time   time.Time
	ID     notifier.EventID
	Source string
	Amount uint32
	Offset uint32
	Value  int64
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %-16s %-12s amount=%d offset=%d value=%d",
		e.Time.Format(time.RFC3339Nano), e.ID, e.Source, e.Amount, e.Offset, e.Value)
}

// Stats counts what the recorder has seen.
type Stats struct {
	Recorded    uint64
	Overwritten uint64
	Buffered    int
}

// Recorder is a notifier.Consumer that keeps the last Capacity records.
// It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	rb       *ringbuffer.RingBuffer
	capacity int

	// source names are interned to keep entries fixed-size
	sources []string
	index   map[string]uint16

	recorded    uint64
	overwritten uint64
	scratch     [entrySize]byte

	log logger.Logger
}

var _ notifier.Consumer = (*Recorder)(nil)

// NewRecorder returns a recorder holding up to capacity entries.
func NewRecorder(capacity int, log logger.Logger) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logger.Global().Module(ComponentTrace)
	}
	return &Recorder{
		rb:       ringbuffer.New(capacity * entrySize),
		capacity: capacity,
		index:    make(map[string]uint16),
		log:      log,
	}
}

// Name implements notifier.Consumer.
func (r *Recorder) Name() string { return ComponentTrace }

// Capacity is the number of entries kept.
func (r *Recorder) Capacity() int { return r.capacity }

// ProcessRecord implements notifier.Consumer.
func (r *Recorder) ProcessRecord(rec notifier.Record) error {
	return r.Add(rec)
}

// Add records rec, overwriting the oldest entry when full.
func (r *Recorder) Add(rec notifier.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.intern(rec.Source)
	if err != nil {
		return err
	}

	if r.rb.Free() < entrySize {
		var old [entrySize]byte
		if _, err := r.rb.Read(old[:]); err != nil {
			return r.ringError("evict", err)
		}
		r.overwritten++
	}

	e := Entry{Time: rec.Time, ID: rec.ID, Amount: rec.Amount, Offset: rec.Offset, Value: rec.Value}
	if err := r.put(e, src); err != nil {
		return r.ringError("write", err)
	}
	r.recorded++
	return nil
}

func (r *Recorder) intern(name string) (uint16, error) {
	if i, ok := r.index[name]; ok {
		return i, nil
	}
	if len(r.sources) > 0xffff {
		return 0, errors.Newf("trace source table full, cannot add %q", name).
			Component(ComponentTrace).
			Category(errors.CategorySystem).
			Build()
	}
	i := uint16(len(r.sources))
	r.sources = append(r.sources, name)
	r.index[name] = i
	return i, nil
}

func (r *Recorder) ringError(op string, err error) error {
	return errors.New(err).
		Component(ComponentTrace).
		Category(errors.CategoryProcessing).
		Context("operation", op).
		Build()
}

// Drain removes and returns every buffered entry, oldest first.
func (r *Recorder) Drain() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readAll()
}

// Snapshot returns every buffered entry, oldest first, leaving them in
// place.
func (r *Recorder) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.readAll()
	for i := range entries {
		_ = r.put(entries[i], r.index[entries[i].Source])
	}
	return entries
}

// put packs e into the ring. Callers make room first.
func (r *Recorder) put(e Entry, src uint16) error {
	b := r.scratch[:]
	clear(b)
	binary.LittleEndian.PutUint64(b[0:], uint64(e.Time.UnixNano()))
	binary.LittleEndian.PutUint64(b[8:], uint64(e.Value))
	binary.LittleEndian.PutUint32(b[16:], e.Amount)
	binary.LittleEndian.PutUint32(b[20:], e.Offset)
	binary.LittleEndian.PutUint16(b[24:], src)
	b[26] = byte(e.ID)
	_, err := r.rb.Write(b)
	return err
}

func (r *Recorder) readAll() []Entry {
	entries := make([]Entry, 0, r.rb.Length()/entrySize)
	var b [entrySize]byte
	for r.rb.Length() >= entrySize {
		if _, err := r.rb.Read(b[:]); err != nil {
			if !errors.Is(err, ringbuffer.ErrIsEmpty) {
				r.log.Warn("trace read failed", logger.Error(err))
			}
			break
		}
		entries = append(entries, Entry{
			Time:   time.Unix(0, int64(binary.LittleEndian.Uint64(b[0:]))),
			Value:  int64(binary.LittleEndian.Uint64(b[8:])),
			Amount: binary.LittleEndian.Uint32(b[16:]),
			Offset: binary.LittleEndian.Uint32(b[20:]),
			Source: r.sources[binary.LittleEndian.Uint16(b[24:])],
			ID:     notifier.EventID(b[26]),
		})
	}
	return entries
}

// Stats returns the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Recorded:    r.recorded,
		Overwritten: r.overwritten,
		Buffered:    r.rb.Length() / entrySize,
	}
}

// Reset discards every entry and the counters.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rb.Reset()
	r.recorded = 0
	r.overwritten = 0
}

// Dump writes the buffered entries to w, one per line, without removing
// them.
func (r *Recorder) Dump(w io.Writer) error {
	for _, e := range r.Snapshot() {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return err
		}
	}
	return nil
}
