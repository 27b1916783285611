package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/record"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

// WaveformRecord is one stored sEMG sample. Records are framed with a 4-byte
// big-endian length prefix followed by the msgpack body, so a reader can
// recover message boundaries even after a truncated final write.
type WaveformRecord struct {
	At       int64     `msgpack:"t"` // receipt offset, nanoseconds
	Seq      uint64    `msgpack:"seq"`
	Channels []float64 `msgpack:"ch"`
}

const maxWaveformRecord = 1 << 16

// WaveformWriter streams stamped sEMG samples to a Position's waveform file.
// It implements the recorder's sample sink. Not safe for concurrent writers;
// the flushing recorder is the only one.
type WaveformWriter struct {
	f   *os.File
	w   *bufio.Writer
	n   int
	hdr [4]byte
}

// CreateWaveform creates (truncates) the waveform file.
func CreateWaveform(path string) (*WaveformWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store: create waveform file: %w", err)
	}
	return &WaveformWriter{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

// WriteSample appends one stamped sample.
func (w *WaveformWriter) WriteSample(s record.Stamped[sensor.EMGSample]) error {
	rec := WaveformRecord{
		At:       int64(s.At),
		Seq:      s.Value.Seq,
		Channels: s.Value.Channels[:],
	}
	body, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal waveform record: %w", err)
	}

	binary.BigEndian.PutUint32(w.hdr[:], uint32(len(body)))
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("store: write waveform record: %w", err)
	}
	if _, err := w.w.Write(body); err != nil {
		return fmt.Errorf("store: write waveform record: %w", err)
	}
	w.n++
	return nil
}

// Count returns how many records were written.
func (w *WaveformWriter) Count() int { return w.n }

// Close flushes and closes the file.
func (w *WaveformWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("store: flush waveform file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("store: close waveform file: %w", err)
	}
	return nil
}

// ReadWaveform loads a whole waveform file back, in append order.
func ReadWaveform(path string) ([]record.Stamped[sensor.EMGSample], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open waveform file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<16)
	var out []record.Stamped[sensor.EMGSample]
	var hdr [4]byte

	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("store: read waveform frame header: %w", err)
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == 0 || n > maxWaveformRecord {
			return nil, fmt.Errorf("store: corrupt waveform frame length %d", n)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("store: read waveform frame body: %w", err)
		}

		var rec WaveformRecord
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("store: decode waveform record: %w", err)
		}
		if len(rec.Channels) != sensor.NumEMGChannels {
			return nil, fmt.Errorf("store: waveform record has %d channels, want %d", len(rec.Channels), sensor.NumEMGChannels)
		}

		var s record.Stamped[sensor.EMGSample]
		s.At = time.Duration(rec.At)
		s.Value.Seq = rec.Seq
		copy(s.Value.Channels[:], rec.Channels)
		out = append(out, s)
	}
}
