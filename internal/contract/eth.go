package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/types"
	"github.com/aced-network/aced/pkg/util"
)

// anchorABI is the subset of the anchor contract surface the node uses.
const anchorABI = `[
  {"name":"getCurrState","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"currHash","type":"bytes32"},{"name":"blockId","type":"uint256"}]},
  {"name":"submitVote","type":"function","stateMutability":"nonpayable","inputs":[{"name":"header","type":"bytes"},{"name":"sid","type":"uint256"},{"name":"blockId","type":"uint256"},{"name":"sigx","type":"uint256"},{"name":"sigy","type":"uint256"},{"name":"bitset","type":"uint256"}],"outputs":[]},
  {"name":"getAll","type":"function","stateMutability":"view","inputs":[{"name":"start","type":"uint256"},{"name":"end","type":"uint256"}],"outputs":[{"name":"hashes","type":"bytes32[]"},{"name":"ids","type":"uint256[]"}]},
  {"name":"countScaleNodes","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"count","type":"uint256"}]},
  {"name":"getScaleNodes","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"nodes","type":"address[]"}]},
  {"name":"addScaleNode","type":"function","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"netAddr","type":"string"},{"name":"pkx1","type":"uint256"},{"name":"pkx2","type":"uint256"},{"name":"pky1","type":"uint256"},{"name":"pky2","type":"uint256"}],"outputs":[]},
  {"name":"resetChain","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

// EthClient implements Client against a real anchor contract through a
// host-chain JSON-RPC endpoint.
type EthClient struct {
	client *ethclient.Client
	bound  *bind.BoundContract
	auth   *bind.TransactOpts
	logger *zap.Logger
}

// DialEth connects to the host chain and binds the anchor contract.
// keyFile holds the hex-encoded ECDSA account key used for transactions.
func DialEth(ctx context.Context, rpcURL, contractAddr, keyFile string, chainID int64, logger *zap.Logger) (*EthClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial host chain: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(anchorABI))
	if err != nil {
		return nil, fmt.Errorf("parse anchor abi: %w", err)
	}

	key, err := crypto.LoadECDSA(keyFile)
	if err != nil {
		return nil, fmt.Errorf("load account key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	bound := bind.NewBoundContract(common.HexToAddress(contractAddr), parsed, client, client, client)

	logger.Info("anchor contract bound",
		zap.String("rpc", rpcURL),
		zap.String("contract", contractAddr),
	)
	return &EthClient{client: client, bound: bound, auth: auth, logger: logger}, nil
}

func (e *EthClient) GetCurrState(ctx context.Context) (types.ContractState, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := e.bound.Call(opts, &out, "getCurrState"); err != nil {
		return types.ContractState{}, fmt.Errorf("getCurrState: %w", err)
	}
	if len(out) != 2 {
		return types.ContractState{}, fmt.Errorf("getCurrState: %d outputs", len(out))
	}
	hash, ok := out[0].([32]byte)
	if !ok {
		return types.ContractState{}, fmt.Errorf("getCurrState: bad hash type %T", out[0])
	}
	id, ok := out[1].(*big.Int)
	if !ok {
		return types.ContractState{}, fmt.Errorf("getCurrState: bad id type %T", out[1])
	}
	return types.ContractState{CurrHash: hash, BlockID: id.Uint64()}, nil
}

func (e *EthClient) SubmitVote(ctx context.Context, vote Vote) error {
	header, err := util.HexToBytes(vote.HeaderHex)
	if err != nil {
		return fmt.Errorf("submitVote: bad header hex: %w", err)
	}
	sigx, ok := new(big.Int).SetString(vote.SigX, 10)
	if !ok {
		return fmt.Errorf("submitVote: bad sigx")
	}
	sigy, ok := new(big.Int).SetString(vote.SigY, 10)
	if !ok {
		return fmt.Errorf("submitVote: bad sigy")
	}

	opts := *e.auth
	opts.Context = ctx
	tx, err := e.bound.Transact(&opts, "submitVote",
		header,
		new(big.Int).SetUint64(vote.SID),
		new(big.Int).SetUint64(vote.BlockID),
		sigx,
		sigy,
		new(big.Int).SetUint64(vote.Bitset),
	)
	if err != nil {
		return fmt.Errorf("submitVote: %w", err)
	}
	e.logger.Info("vote submitted",
		zap.Uint64("block_id", vote.BlockID),
		zap.String("tx", tx.Hash().Hex()),
	)
	return nil
}

func (e *EthClient) GetAll(ctx context.Context, start, end uint64) ([]types.ContractState, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	err := e.bound.Call(opts, &out, "getAll",
		new(big.Int).SetUint64(start), new(big.Int).SetUint64(end))
	if err != nil {
		return nil, fmt.Errorf("getAll: %w", err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("getAll: %d outputs", len(out))
	}
	hashes, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("getAll: bad hashes type %T", out[0])
	}
	ids, ok := out[1].([]*big.Int)
	if !ok || len(ids) != len(hashes) {
		return nil, fmt.Errorf("getAll: mismatched outputs")
	}

	states := make([]types.ContractState, len(hashes))
	for i := range hashes {
		states[i] = types.ContractState{CurrHash: hashes[i], BlockID: ids[i].Uint64()}
	}
	return states, nil
}

func (e *EthClient) CountScaleNodes(ctx context.Context) (int, error) {
	var out []interface{}
	if err := e.bound.Call(&bind.CallOpts{Context: ctx}, &out, "countScaleNodes"); err != nil {
		return 0, fmt.Errorf("countScaleNodes: %w", err)
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("countScaleNodes: bad type %T", out[0])
	}
	return int(count.Int64()), nil
}

func (e *EthClient) GetScaleNodes(ctx context.Context) ([]string, error) {
	var out []interface{}
	if err := e.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getScaleNodes"); err != nil {
		return nil, fmt.Errorf("getScaleNodes: %w", err)
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getScaleNodes: bad type %T", out[0])
	}
	nodes := make([]string, len(addrs))
	for i, addr := range addrs {
		nodes[i] = addr.Hex()
	}
	return nodes, nil
}

func (e *EthClient) AddScaleNode(ctx context.Context, account, netAddr string, pubkey [4]string) error {
	coords := make([]*big.Int, 4)
	for i, c := range pubkey {
		v, ok := new(big.Int).SetString(c, 10)
		if !ok {
			return fmt.Errorf("addScaleNode: bad pubkey coordinate %d", i)
		}
		coords[i] = v
	}
	opts := *e.auth
	opts.Context = ctx
	_, err := e.bound.Transact(&opts, "addScaleNode",
		common.HexToAddress(account), netAddr, coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		return fmt.Errorf("addScaleNode: %w", err)
	}
	return nil
}

func (e *EthClient) ResetChain(ctx context.Context) error {
	opts := *e.auth
	opts.Context = ctx
	if _, err := e.bound.Transact(&opts, "resetChain"); err != nil {
		return fmt.Errorf("resetChain: %w", err)
	}
	return nil
}

// Close releases the underlying RPC connection.
func (e *EthClient) Close() {
	e.client.Close()
}
