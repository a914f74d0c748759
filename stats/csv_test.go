package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSenderCSVRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sender.csv")

	w, err := OpenSenderCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSenderStats(SenderRow{FrameID: 1, TargetBitrateKbps: 2000, FrameSizeBytes: 512, EncodeTimeMs: 1.5, EWMARTTMs: 20.25, RecoveryFired: true}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (header + row)", len(lines))
	}
	if !strings.Contains(lines[0], "frame_id") {
		t.Errorf("header missing frame_id column: %q", lines[0])
	}
	if !strings.Contains(lines[1], "true") {
		t.Errorf("row missing recovery_fired=true: %q", lines[1])
	}
}

func TestReceiverCSVRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "receiver.csv")

	w, err := OpenReceiverCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteReceiverStats(ReceiverRow{FrameID: 7, FrameSizeBytes: 1024, FramesLost: 3}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "7,1024,3") {
		t.Errorf("csv missing expected row data: %q", data)
	}
}
