// Package api exposes the administrative REST surface and the
// prometheus metrics endpoint. Everything here is a thin shim over the
// core interfaces; no protocol logic lives in this package.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/node"
	"github.com/aced-network/aced/pkg/util"
)

const requestTimeout = 30 * time.Second

// Server is the admin HTTP server.
type Server struct {
	node   *node.Node
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewServer builds the admin API over a node.
func NewServer(n *node.Node, logger *zap.Logger) *Server {
	s := &Server{node: n, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("/transaction-generator/start", s.generatorStart)
	s.mux.HandleFunc("/transaction-generator/stop", s.generatorStop)
	s.mux.HandleFunc("/transaction-generator/step", s.generatorStep)

	s.mux.HandleFunc("/mempool/change-size", s.mempoolChangeSize)
	s.mux.HandleFunc("/mempool/num-transaction", s.mempoolNumTransaction)

	s.mux.HandleFunc("/contract/get-curr-state", s.contractCurrState)
	s.mux.HandleFunc("/contract/count-scale-nodes", s.contractCountScaleNodes)
	s.mux.HandleFunc("/contract/get-scale-nodes", s.contractGetScaleNodes)
	s.mux.HandleFunc("/contract/add-scale-node", s.contractAddScaleNode)
	s.mux.HandleFunc("/contract/sync-chain", s.contractSyncChain)
	s.mux.HandleFunc("/contract/reset-chain", s.contractResetChain)

	s.mux.HandleFunc("/light/sample", s.lightSample)

	s.mux.HandleFunc("/telematics/snapshot", s.telematicsSnapshot)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("admin api listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response write failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	s.writeJSON(w, map[string]string{"error": err.Error()})
}

func (s *Server) generatorStart(w http.ResponseWriter, r *http.Request) {
	s.node.Generator().Start(context.Background())
	s.writeJSON(w, map[string]string{"status": "started"})
}

func (s *Server) generatorStop(w http.ResponseWriter, r *http.Request) {
	s.node.Generator().Stop()
	s.writeJSON(w, map[string]string{"status": "stopped"})
}

func (s *Server) generatorStep(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		count = 1
	}
	accepted := s.node.Generator().Step(count)
	s.writeJSON(w, map[string]int{"accepted": accepted})
}

func (s *Server) mempoolChangeSize(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(r.URL.Query().Get("bytes"))
	if err != nil || size <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("bad bytes parameter"))
		return
	}
	s.node.Mempool().ChangeBlockSize(size)
	s.writeJSON(w, map[string]int{"block_size": size})
}

func (s *Server) mempoolNumTransaction(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]int{"num_transaction": s.node.Mempool().NumTransactions()})
}

func (s *Server) contractCurrState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	state, err := s.node.Contract().GetCurrState(ctx)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"curr_hash": util.HashToHex(state.CurrHash),
		"block_id":  state.BlockID,
	})
}

func (s *Server) contractCountScaleNodes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	count, err := s.node.Contract().CountScaleNodes(ctx)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, map[string]int{"count": count})
}

func (s *Server) contractGetScaleNodes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	nodes, err := s.node.Contract().GetScaleNodes(ctx)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, map[string][]string{"nodes": nodes})
}

func (s *Server) contractAddScaleNode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var pubkey [4]string
	for i, name := range []string{"pkx1", "pkx2", "pky1", "pky2"} {
		pubkey[i] = q.Get(name)
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	err := s.node.Contract().AddScaleNode(ctx, q.Get("account"), q.Get("addr"), pubkey)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) contractSyncChain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	states, err := s.node.Contract().GetAll(ctx, 0, 0)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.node.Chain().Replace(states)
	s.writeJSON(w, map[string]int{"synced": len(states)})
}

func (s *Server) contractResetChain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.node.Contract().ResetChain(ctx); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "reset"})
}

// lightSample runs the light-node availability check for an anchored
// block against its proposer.
func (s *Server) lightSample(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	blockID, err := strconv.ParseUint(q.Get("block"), 10, 64)
	proposer := q.Get("proposer")
	if err != nil || proposer == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("need block and proposer parameters"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	if err := s.node.SampleAvailability(ctx, proposer, blockID); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"block_id": blockID, "available": true})
}

// telematicsSnapshot reports a point-in-time view of the node's
// counters for experiment harnesses.
func (s *Server) telematicsSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"chain_height":   s.node.Chain().Height(),
		"mempool_size":   s.node.Mempool().NumTransactions(),
		"peers":          s.node.PeerCount(),
		"pending_votes":  s.node.Submitter().Pending(),
		"stored_samples": s.node.Store().SampleCount(),
		"stored_blocks":  s.node.Store().BlockCount(),
	})
}
