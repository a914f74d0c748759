// Command receiver connects to a running sender, reassembles fragmented
// frames with key-frame-seek recovery, decodes them, and optionally
// displays the result, dictating the sender's target bitrate throughout.
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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/vstream/codec"
	"github.com/zsiec/vstream/protocol"
	"github.com/zsiec/vstream/receiver"
	"github.com/zsiec/vstream/session"
	"github.com/zsiec/vstream/stats"
)

func main() {
	fps := flag.Int("fps", 30, "frame rate to negotiate with the sender")
	cbr := flag.Int("cbr", 2000, "target bitrate in kbps to request from the sender")
	lazy := flag.Int("lazy", int(receiver.LazyDecodeDisplay), "decode/display level: 0=decode+display, 1=decode-only, 2=disabled")
	metricsAddr := flag.String("metrics", "", "if set, expose Prometheus metrics at http://<addr>/metrics")
	outPath := flag.String("o", "", "if set, write per-frame telemetry to this CSV path")
	verbose := flag.Bool("v", false, "enable debug logging")
	streamTimeSec := flag.Int("streamtime", 0, "if set, stop after this many seconds")
	flag.Parse()

	if flag.NArg() != 4 {
		fmt.Fprintln(os.Stderr, "usage: receiver [--fps N] [--cbr kbps] [--lazy {0,1,2}] [--metrics addr] [-o path] [-v] [--streamtime sec] <host> <port> <width> <height>")
		os.Exit(1)
	}
	host := flag.Arg(0)
	port, err1 := strconv.Atoi(flag.Arg(1))
	width, err2 := strconv.Atoi(flag.Arg(2))
	height, err3 := strconv.Atoi(flag.Arg(3))
	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Fprintln(os.Stderr, "port, width, and height must be integers")
		os.Exit(1)
	}
	if *lazy < 0 || *lazy > 2 {
		fmt.Fprintln(os.Stderr, "--lazy must be 0, 1, or 2")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := runConfig{
		host: host, port: port, width: width, height: height,
		fps: *fps, cbr: *cbr, lazy: receiver.LazyLevel(*lazy),
		metricsAddr: *metricsAddr, outPath: *outPath, streamTimeSec: *streamTimeSec,
	}
	if err := run(cfg, log); err != nil {
		log.Error("receiver exited with error", "error", err)
		os.Exit(1)
	}
}

type runConfig struct {
	host          string
	port          int
	width, height int
	fps, cbr      int
	lazy          receiver.LazyLevel
	metricsAddr   string
	outPath       string
	streamTimeSec int
}

func run(cfg runConfig, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if cfg.streamTimeSec > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(cfg.streamTimeSec)*time.Second)
		defer timeoutCancel()
	}

	senderAddr := &net.UDPAddr{IP: net.ParseIP(cfg.host), Port: cfg.port}
	if senderAddr.IP == nil {
		resolved, err := net.ResolveIPAddr("ip", cfg.host)
		if err != nil {
			return fmt.Errorf("receiver: resolve %s: %w", cfg.host, err)
		}
		senderAddr.IP = resolved.IP
	}
	feedbackAddr := &net.UDPAddr{IP: senderAddr.IP, Port: cfg.port + 1}

	dataConn, err := net.DialUDP("udp", nil, senderAddr)
	if err != nil {
		return fmt.Errorf("receiver: dial data channel: %w", err)
	}
	defer dataConn.Close()
	feedbackConn, err := net.DialUDP("udp", nil, feedbackAddr)
	if err != nil {
		return fmt.Errorf("receiver: dial feedback channel: %w", err)
	}
	defer feedbackConn.Close()

	wireCfg := protocol.Config{
		Width: uint16(cfg.width), Height: uint16(cfg.height),
		FrameRate: uint16(cfg.fps), TargetBitrate: uint32(cfg.cbr),
	}
	sig := protocol.Signal{TargetBitrate: uint32(cfg.cbr)}
	if err := session.ReceiverHandshake(dataConn, feedbackConn, wireCfg, sig); err != nil {
		return err
	}

	var statsSink receiver.StatsSink
	if cfg.outPath != "" {
		w, err := stats.OpenReceiverCSV(cfg.outPath)
		if err != nil {
			return err
		}
		defer w.Close()
		statsSink = stats.ReceiverSink{W: w}
	}

	var metrics *stats.Metrics
	if cfg.metricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics = stats.NewMetrics(registry, "receiver")
		stats.ServeMetrics(cfg.metricsAddr, registry, log)
	}

	dec := codec.NewPassthroughDecoder()
	worker := receiver.NewWorker(dec, nil, cfg.lazy, log)
	worker.Start()
	defer worker.Close()

	sched := receiver.NewScheduler(dataConn, feedbackConn, worker, statsSink, log)
	if metrics != nil {
		sched.OnStats(func(fs receiver.FrameStats) {
			metrics.ObserveReceiver(stats.ReceiverRow{
				FrameID:        fs.FrameID,
				FrameSizeBytes: fs.FrameSizeBytes,
				FramesLost:     fs.FramesLost,
			})
		})
	}
	if err := sched.SendSignal(uint32(cfg.cbr)); err != nil {
		return err
	}

	log.Info("receiving", "sender", senderAddr.String(), "width", cfg.width, "height", cfg.height, "lazy", cfg.lazy)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return sched.RunFeedback(ctx) })

	if err := g.Wait(); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return err
	}
	return nil
}
