// Package stats persists per-frame telemetry to CSV, in the shape both
// the sender and receiver CLIs write with -o, and optionally exposes it
// as Prometheus metrics for scraping.
package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// SenderRow is one CSV row of sender-side per-frame telemetry.
type SenderRow struct {
	FrameID           uint32
	TargetBitrateKbps uint32
	FrameSizeBytes    int
	EncodeTimeMs      float64
	EWMARTTMs         float64
	RecoveryFired     bool
}

// ReceiverRow is one CSV row of receiver-side per-frame telemetry.
type ReceiverRow struct {
	FrameID        uint32
	FrameSizeBytes int
	FramesLost     int
	DecodeTimeMs   float64
	DisplayTimeMs  float64
}

var senderHeader = []string{"frame_id", "target_bitrate_kbps", "frame_size_bytes", "encode_time_ms", "ewma_rtt_ms", "recovery_fired"}
var receiverHeader = []string{"frame_id", "frame_size_bytes", "frames_lost", "decode_time_ms", "display_time_ms"}

// Writer appends per-frame rows to an underlying CSV file, flushing after
// every row so a killed process never loses more than the row in flight.
type Writer struct {
	f *os.File
	w *csv.Writer
}

// OpenSenderCSV creates (or truncates) path and writes the sender header.
func OpenSenderCSV(path string) (*Writer, error) {
	return open(path, senderHeader)
}

// OpenReceiverCSV creates (or truncates) path and writes the receiver header.
func OpenReceiverCSV(path string) (*Writer, error) {
	return open(path, receiverHeader)
}

func open(path string, header []string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stats: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("stats: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w}, nil
}

// WriteSenderStats appends one sender telemetry row.
func (w *Writer) WriteSenderStats(row SenderRow) error {
	return w.write([]string{
		strconv.FormatUint(uint64(row.FrameID), 10),
		strconv.FormatUint(uint64(row.TargetBitrateKbps), 10),
		strconv.Itoa(row.FrameSizeBytes),
		strconv.FormatFloat(row.EncodeTimeMs, 'f', 3, 64),
		strconv.FormatFloat(row.EWMARTTMs, 'f', 3, 64),
		strconv.FormatBool(row.RecoveryFired),
	})
}

// WriteReceiverStats appends one receiver telemetry row.
func (w *Writer) WriteReceiverStats(row ReceiverRow) error {
	return w.write([]string{
		strconv.FormatUint(uint64(row.FrameID), 10),
		strconv.Itoa(row.FrameSizeBytes),
		strconv.Itoa(row.FramesLost),
		strconv.FormatFloat(row.DecodeTimeMs, 'f', 3, 64),
		strconv.FormatFloat(row.DisplayTimeMs, 'f', 3, 64),
	})
}

func (w *Writer) write(record []string) error {
	if err := w.w.Write(record); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

var _ io.Closer = (*Writer)(nil)
