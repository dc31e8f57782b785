// Command aced runs one availability-layer node: a side node proposing
// blocks in its slots, a scale node sampling shards and voting, or a
// plain collector following the anchored chain.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/api"
	"github.com/aced-network/aced/internal/node"
)

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:7000", "TCP listen address")
		sideNodes   = flag.String("side-nodes", "", "comma-separated side-node ring, in slot order")
		scaleNodes  = flag.String("scale-nodes", "", "comma-separated scale-node addresses")
		sideNode    = flag.Bool("side", false, "run the slot scheduler (side node)")
		scaleID     = flag.Uint64("scale-id", 0, "1-based scale id; 0 for non-scale nodes")
		numScale    = flag.Uint64("num-scale", 0, "total number of scale nodes")
		slotTime    = flag.Duration("slot-time", 4*time.Second, "slot duration")
		epochSec    = flag.Int64("epoch-sec", 0, "epoch start, unix seconds")
		epochMillis = flag.Int64("epoch-millis", 0, "epoch start, millisecond part")
		dataDir     = flag.String("data-dir", "data", "data directory")
		codeDir     = flag.String("code-dir", "codes", "code table directory")
		kSet        = flag.String("k-set", "128,64,32,16,8,4", "per-layer systematic symbol counts")
		apiAddr     = flag.String("api-addr", "", "admin API listen address (empty disables)")
		genRate     = flag.Int("gen-rate", 100, "transaction generator rate, tx/s")

		contractRPC  = flag.String("contract-rpc", "", "host-chain JSON-RPC URL")
		contractAddr = flag.String("contract-addr", "", "anchor contract address")
		accountKey   = flag.String("account-key", "", "host-chain account key file")
		chainID      = flag.Int64("chain-id", 1337, "host chain id")
		mockContract = flag.Bool("mock-contract", false, "use an in-process anchor contract")

		debug = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	logger := buildLogger(*debug)
	defer logger.Sync()

	ks, err := parseKSet(*kSet)
	if err != nil {
		logger.Fatal("bad -k-set", zap.Error(err))
	}
	if err := os.MkdirAll(*dataDir, 0o700); err != nil {
		logger.Fatal("create data dir", zap.Error(err))
	}

	cfg := node.Config{
		Addr:            *addr,
		SideNodes:       splitList(*sideNodes),
		ScaleNodes:      splitList(*scaleNodes),
		ScaleID:         *scaleID,
		NumScale:        *numScale,
		SideNode:        *sideNode,
		SlotTime:        *slotTime,
		EpochSec:        *epochSec,
		EpochMillis:     *epochMillis,
		DataDir:         *dataDir,
		CodeDir:         *codeDir,
		KSet:            ks,
		BLSKeyFile:      filepath.Join(*dataDir, "bls.key"),
		ContractRPC:     *contractRPC,
		ContractAddr:    *contractAddr,
		AccountKeyFile:  *accountKey,
		ContractChainID: *chainID,
		MockContract:    *mockContract,
		APIAddr:         *apiAddr,
		GeneratorRate:   *genRate,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("node construction failed", zap.Error(err))
	}
	defer n.Close()

	if err := n.Start(ctx); err != nil {
		logger.Fatal("node start failed", zap.Error(err))
	}

	if cfg.APIAddr != "" {
		go func() {
			if err := api.NewServer(n, logger.Named("api")).Run(ctx, cfg.APIAddr); err != nil {
				logger.Error("admin api failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
}

func buildLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		os.Exit(1)
	}
	return logger
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseKSet(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		k, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
