// Package session implements the CONFIG/SIGNAL handshake shared by both
// roles: the receiver initiates it, the sender blocks until both
// messages arrive before binding its peers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/vstream/protocol"
)

const handshakeReadBufSize = 2048

// SenderHandshakeResult carries what the sender learns from the
// handshake: the negotiated picture/rate/bitrate parameters and the two
// now-connected sockets, each bound exclusively to the receiver's peer
// address for its channel.
type SenderHandshakeResult struct {
	Config       protocol.Config
	InitialKbps  uint32
	DataConn     *net.UDPConn
	FeedbackConn *net.UDPConn
}

// SenderHandshake blocks on dataListener until a CONFIG record arrives
// and on feedbackListener until a SIGNAL record arrives (concurrently),
// discarding anything else, then reconnects each socket exclusively to
// the address the matching record came from.
func SenderHandshake(ctx context.Context, dataListener, feedbackListener *net.UDPConn, log *slog.Logger) (*SenderHandshakeResult, error) {
	if log == nil {
		log = slog.Default()
	}

	var cfg protocol.Config
	var sig protocol.Signal
	var dataPeer, feedbackPeer *net.UDPAddr

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, addr, err := recvUntil(ctx, dataListener, protocol.MsgConfig, log)
		if err != nil {
			return err
		}
		cfg, dataPeer = raw.(protocol.Config), addr
		return nil
	})
	g.Go(func() error {
		raw, addr, err := recvUntil(ctx, feedbackListener, protocol.MsgSignal, log)
		if err != nil {
			return err
		}
		sig, feedbackPeer = raw.(protocol.Signal), addr
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("session: handshake: %w", err)
	}

	dataConn, err := reconnect(dataListener, dataPeer)
	if err != nil {
		return nil, fmt.Errorf("session: connect data channel: %w", err)
	}
	feedbackConn, err := reconnect(feedbackListener, feedbackPeer)
	if err != nil {
		return nil, fmt.Errorf("session: connect feedback channel: %w", err)
	}

	log.Info("handshake complete",
		"data_peer", dataPeer.String(), "feedback_peer", feedbackPeer.String(),
		"width", cfg.Width, "height", cfg.Height, "frame_rate", cfg.FrameRate,
	)

	return &SenderHandshakeResult{
		Config:       cfg,
		InitialKbps:  sig.TargetBitrate,
		DataConn:     dataConn,
		FeedbackConn: feedbackConn,
	}, nil
}

// recvUntil blocks reading datagrams from l until one parses as the
// wanted control message type, returning its value and sender address.
// Everything else is discarded.
func recvUntil(ctx context.Context, l *net.UDPConn, want protocol.MsgType, log *slog.Logger) (any, *net.UDPAddr, error) {
	// ReadFromUDP has no deadline, so cancelling ctx alone would never
	// unblock it (e.g. when the sender's other handshake goroutine fails
	// first); closing the socket on cancellation does. The caller owns l
	// past this point regardless, since a failed handshake never reaches
	// reconnect.
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	buf := make([]byte, handshakeReadBufSize)
	for {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		n, addr, err := l.ReadFromUDP(buf)
		if err != nil {
			return nil, nil, err
		}
		switch want {
		case protocol.MsgConfig:
			cfg, err := protocol.ParseConfig(buf[:n])
			if err != nil {
				log.Warn("discarding unexpected message on data channel during handshake")
				continue
			}
			return cfg, addr, nil
		case protocol.MsgSignal:
			sig, err := protocol.ParseSignal(buf[:n])
			if err != nil {
				log.Warn("discarding unexpected message on feedback channel during handshake")
				continue
			}
			return sig, addr, nil
		default:
			return nil, nil, fmt.Errorf("session: unsupported handshake message type %v", want)
		}
	}
}

// reconnect closes the listening socket l and rebinds a new socket to the
// same local address, connected exclusively to peer — the Go equivalent
// of calling connect() on an already-bound socket, so that afterward only
// traffic from peer is ever read.
func reconnect(l *net.UDPConn, peer *net.UDPAddr) (*net.UDPConn, error) {
	local := l.LocalAddr().(*net.UDPAddr)
	if err := l.Close(); err != nil {
		return nil, err
	}
	return net.DialUDP("udp", local, peer)
}

// ReceiverHandshake sends one CONFIG on dataConn and one SIGNAL on
// feedbackConn — both already connected to the sender — before the
// receiver enters its main loop.
func ReceiverHandshake(dataConn, feedbackConn *net.UDPConn, cfg protocol.Config, sig protocol.Signal) error {
	if _, err := dataConn.Write(protocol.SerializeConfig(cfg)); err != nil {
		return fmt.Errorf("session: send CONFIG: %w", err)
	}
	if _, err := feedbackConn.Write(protocol.SerializeSignal(sig)); err != nil {
		return fmt.Errorf("session: send SIGNAL: %w", err)
	}
	return nil
}
