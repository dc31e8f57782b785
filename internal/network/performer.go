package network

import (
	"context"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/types"
)

// performerCount is the size of the dispatch pool.
const performerCount = 4

// Handlers receives decoded, kind-dispatched messages. A nil handler
// drops its message kind. Handlers run on performer goroutines and must
// not block indefinitely.
type Handlers struct {
	OnTransaction            func(tx *types.Transaction)
	OnProposeBlock           func(peer *Peer, msg *ProposeBlock)
	OnScaleReqChunks         func(peer *Peer, msg *ScaleReqChunks)
	OnScaleReqChunksReply    func(msg *ScaleReqChunksReply)
	OnMySign                 func(msg *MySign)
	OnScaleGetAllChunks      func(peer *Peer, msg *ScaleGetAllChunks)
	OnScaleGetAllChunksReply func(msg *ScaleGetAllChunksReply)
	OnScaleReqSample         func(peer *Peer, msg *ScaleReqSample)
	OnScaleReqSampleReply    func(msg *ScaleReqSampleReply)
}

// Performer dequeues inbound tasks and dispatches them by message kind.
type Performer struct {
	server   *Server
	handlers Handlers
	logger   *zap.Logger
}

// NewPerformer creates the dispatcher over a server's task channel.
func NewPerformer(server *Server, handlers Handlers, logger *zap.Logger) *Performer {
	return &Performer{server: server, handlers: handlers, logger: logger}
}

// Start launches the performer pool.
func (p *Performer) Start(ctx context.Context) {
	for i := 0; i < performerCount; i++ {
		go p.loop(ctx)
	}
	p.logger.Info("performers started", zap.Int("count", performerCount))
}

func (p *Performer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.server.Tasks():
			p.dispatch(task)
		}
	}
}

func (p *Performer) dispatch(task Task) {
	switch msg := task.Msg.(type) {
	case *Ping:
		p.logger.Debug("ping", zap.String("text", msg.Text))
		task.Peer.Send(&Pong{Text: "hello from " + p.server.Addr()})

	case *Pong:
		p.logger.Debug("pong", zap.String("text", msg.Text))

	case *SendTransaction:
		if p.handlers.OnTransaction == nil {
			return
		}
		// Malformed input: drop and log, keep the peer.
		tx, err := types.DeserializeTransaction(msg.Tx)
		if err != nil {
			p.logger.Debug("invalid transaction", zap.Error(err))
			return
		}
		p.handlers.OnTransaction(tx)

	case *ProposeBlock:
		if p.handlers.OnProposeBlock != nil {
			p.handlers.OnProposeBlock(task.Peer, msg)
		}

	case *ScaleReqChunks:
		if p.handlers.OnScaleReqChunks != nil {
			p.handlers.OnScaleReqChunks(task.Peer, msg)
		}

	case *ScaleReqChunksReply:
		if p.handlers.OnScaleReqChunksReply != nil {
			p.handlers.OnScaleReqChunksReply(msg)
		}

	case *MySign:
		if p.handlers.OnMySign != nil {
			p.handlers.OnMySign(msg)
		}

	case *ScaleGetAllChunks:
		if p.handlers.OnScaleGetAllChunks != nil {
			p.handlers.OnScaleGetAllChunks(task.Peer, msg)
		}

	case *ScaleGetAllChunksReply:
		if p.handlers.OnScaleGetAllChunksReply != nil {
			p.handlers.OnScaleGetAllChunksReply(msg)
		}

	case *ScaleReqSample:
		if p.handlers.OnScaleReqSample != nil {
			p.handlers.OnScaleReqSample(task.Peer, msg)
		}

	case *ScaleReqSampleReply:
		if p.handlers.OnScaleReqSampleReply != nil {
			p.handlers.OnScaleReqSampleReply(msg)
		}

	default:
		p.logger.Debug("unhandled message kind", zap.Uint8("kind", uint8(task.Msg.Kind())))
	}
}
