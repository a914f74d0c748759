// Command sender reads a raw YUV420 clip, encodes and fragments it over
// UDP with selective-repeat retransmission, and adapts its bitrate to
// SIGNAL feedback from the receiver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zsiec/vstream/codec"
	"github.com/zsiec/vstream/protocol"
	"github.com/zsiec/vstream/sender"
	"github.com/zsiec/vstream/session"
	"github.com/zsiec/vstream/stats"
	"github.com/zsiec/vstream/yuv"
)

func main() {
	mtu := flag.Int("mtu", protocol.DefaultMTU, "path MTU, bounds the fragment payload size")
	metricsAddr := flag.String("metrics", "", "if set, expose Prometheus metrics at http://<addr>/metrics")
	outPath := flag.String("o", "", "if set, write per-frame telemetry to this CSV path")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: sender [--mtu N] [--metrics addr] [-o path] [-v] <port> <yuv_path>")
		os.Exit(1)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	yuvPath := flag.Arg(1)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(port, yuvPath, *mtu, *metricsAddr, *outPath, log); err != nil {
		log.Error("sender exited with error", "error", err)
		os.Exit(1)
	}
}

func run(port int, yuvPath string, mtu int, metricsAddr, outPath string, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	dataListener, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("sender: listen data channel: %w", err)
	}
	feedbackListener, err := net.ListenUDP("udp", &net.UDPAddr{Port: port + 1})
	if err != nil {
		return fmt.Errorf("sender: listen feedback channel: %w", err)
	}

	log.Info("waiting for receiver handshake", "data_port", port, "feedback_port", port+1)
	hs, err := session.SenderHandshake(ctx, dataListener, feedbackListener, log)
	if err != nil {
		return err
	}
	defer hs.DataConn.Close()
	defer hs.FeedbackConn.Close()

	maxPayload, err := protocol.MaxPayload(mtu)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}

	frames, err := yuv.Open(yuvPath, int(hs.Config.Width), int(hs.Config.Height))
	if err != nil {
		return err
	}
	defer frames.Close()

	enc := codec.NewPassthroughEncoder(hs.Config.Width, hs.Config.Height)
	sess := sender.NewSession(enc, hs.Config.Width, hs.Config.Height, maxPayload, log)
	sess.SetTargetBitrate(hs.InitialKbps)
	defer sess.Close()

	var statsSink sender.StatsSink
	if outPath != "" {
		w, err := stats.OpenSenderCSV(outPath)
		if err != nil {
			return err
		}
		defer w.Close()
		statsSink = stats.SenderSink{W: w}
	}

	var registry *prometheus.Registry
	var metrics *stats.Metrics
	if metricsAddr != "" {
		registry = prometheus.NewRegistry()
		metrics = stats.NewMetrics(registry, "sender")
		stats.ServeMetrics(metricsAddr, registry, log)
	}

	sched := sender.NewScheduler(sess, hs.DataConn, hs.FeedbackConn, frames, hs.Config.FrameRate, statsSink, log)
	if metrics != nil {
		sched.OnStats(func(st sender.Stats) {
			metrics.ObserveSender(stats.SenderRow{
				FrameID:           st.FrameID,
				TargetBitrateKbps: st.TargetBitrateKbps,
				FrameSizeBytes:    st.FrameSizeBytes,
				EncodeTimeMs:      st.EncodeTimeMs,
				EWMARTTMs:         st.EWMARTTMs,
				RecoveryFired:     st.RecoveryFired,
			})
		})
	}

	log.Info("streaming", "width", hs.Config.Width, "height", hs.Config.Height,
		"frame_rate", hs.Config.FrameRate, "mtu", mtu)

	return sched.Run(ctx)
}
