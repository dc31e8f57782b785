package network

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aced-network/aced/internal/metrics"
)

const (
	// taskQueueDepth bounds inbound work waiting for the performers.
	taskQueueDepth = 1024

	// peerWriteQueueDepth bounds frames queued per peer.
	peerWriteQueueDepth = 256
)

// Task is one inbound message together with the peer handle to answer on.
type Task struct {
	Peer *Peer
	Msg  Message
}

// Peer is a live connection. All writes go through the write queue so a
// slow peer never blocks the dispatcher.
type Peer struct {
	conn    net.Conn
	writeCh chan []byte
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Send queues a message to the peer, dropping it if the queue is full.
func (p *Peer) Send(msg Message) {
	body, err := Encode(msg)
	if err != nil {
		p.logger.Error("encode outbound message", zap.Error(err))
		return
	}
	select {
	case p.writeCh <- body:
	case <-p.done:
	default:
		p.logger.Warn("peer write queue full, dropping message",
			zap.String("peer", p.conn.RemoteAddr().String()))
	}
}

// RemoteAddr returns the peer's connection address.
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// Server owns the listening socket and every peer connection, and feeds
// inbound frames into a single work channel consumed by the performer
// pool.
type Server struct {
	addr   string
	logger *zap.Logger

	ln    net.Listener
	tasks chan Task

	mu    sync.Mutex
	peers map[string]*Peer // keyed by dial address for outbound reuse
}

// NewServer creates a server listening on addr once started.
func NewServer(addr string, logger *zap.Logger) *Server {
	return &Server{
		addr:   addr,
		logger: logger,
		tasks:  make(chan Task, taskQueueDepth),
		peers:  make(map[string]*Peer),
	}
}

// Tasks returns the inbound work channel.
func (s *Server) Tasks() <-chan Task {
	return s.tasks
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.logger.Info("server listening", zap.String("addr", s.addr))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("accept failed", zap.Error(err))
				continue
			}
			s.startPeer(ctx, conn, "")
		}
	}()
	return nil
}

// Connect returns the peer for a dial address, establishing the
// connection if needed.
func (s *Server) Connect(ctx context.Context, addr string) (*Peer, error) {
	s.mu.Lock()
	if peer, ok := s.peers[addr]; ok {
		s.mu.Unlock()
		return peer, nil
	}
	s.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return s.startPeer(ctx, conn, addr), nil
}

// Broadcast sends a message to every side and scale node in the given
// address list (skipping ourselves).
func (s *Server) Broadcast(ctx context.Context, addrs []string, msg Message) {
	for _, addr := range addrs {
		if addr == s.addr {
			continue
		}
		if err := s.Unicast(ctx, addr, msg); err != nil {
			s.logger.Debug("broadcast send failed", zap.String("peer", addr), zap.Error(err))
		}
	}
}

// Unicast sends a message to one dial address.
func (s *Server) Unicast(ctx context.Context, addr string, msg Message) error {
	peer, err := s.Connect(ctx, addr)
	if err != nil {
		return err
	}
	peer.Send(msg)
	return nil
}

// PeerCount returns the number of live tracked peers.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) startPeer(ctx context.Context, conn net.Conn, dialAddr string) *Peer {
	peer := &Peer{
		conn:    conn,
		writeCh: make(chan []byte, peerWriteQueueDepth),
		logger:  s.logger,
		done:    make(chan struct{}),
	}

	if dialAddr != "" {
		s.mu.Lock()
		s.peers[dialAddr] = peer
		s.mu.Unlock()
	}
	metrics.PeersConnected.Set(float64(s.PeerCount()))

	go s.readLoop(ctx, peer, dialAddr)
	go s.writeLoop(peer)
	return peer
}

func (s *Server) dropPeer(peer *Peer, dialAddr string) {
	peer.close()
	if dialAddr != "" {
		s.mu.Lock()
		if s.peers[dialAddr] == peer {
			delete(s.peers, dialAddr)
		}
		s.mu.Unlock()
	}
	metrics.PeersConnected.Set(float64(s.PeerCount()))
}

func (s *Server) readLoop(ctx context.Context, peer *Peer, dialAddr string) {
	defer s.dropPeer(peer, dialAddr)

	codec := NewCodec(peer.conn)
	// Per-peer inbound limiter: sized for a full light-sampling sweep
	// in one burst, a brake on floods.
	limiter := rate.NewLimiter(500, 1000)

	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("peer read ended",
					zap.String("peer", peer.RemoteAddr()), zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			s.logger.Warn("peer rate limited", zap.String("peer", peer.RemoteAddr()))
			continue
		}

		select {
		case s.tasks <- Task{Peer: peer, Msg: msg}:
		default:
			s.logger.Warn("task queue full, dropping message",
				zap.Uint8("kind", uint8(msg.Kind())))
		}
	}
}

func (s *Server) writeLoop(peer *Peer) {
	codec := NewCodec(peer.conn)
	for {
		select {
		case <-peer.done:
			return
		case body := <-peer.writeCh:
			if err := codec.WriteRaw(body); err != nil {
				s.logger.Debug("peer write failed",
					zap.String("peer", peer.RemoteAddr()), zap.Error(err))
				peer.close()
				return
			}
		}
	}
}
