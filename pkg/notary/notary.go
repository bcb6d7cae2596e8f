// Package notary writes approved complaints to the ComplaintVerifier smart
// contract on an EVM chain.
package notary

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrAlreadyNotarized is returned when the contract already holds the complaint id.
var ErrAlreadyNotarized = errors.New("complaint already notarized on-chain")

// PendingError means the transaction was broadcast but its receipt did not
// arrive in time. Hash identifies the transaction so a later attempt can
// check it instead of submitting again.
type PendingError struct {
	Hash string
	Err  error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("notary: transaction %s not confirmed: %v", e.Hash, e.Err)
}

func (e *PendingError) Unwrap() error { return e.Err }

// TxState is the chain's view of a submitted transaction.
type TxState int

const (
	// TxUnknown means the node does not know the hash, usually a dropped transaction.
	TxUnknown TxState = iota
	TxPending
	TxMined
	TxReverted
)

// Record is the payload written on-chain for an approved complaint.
type Record struct {
	USN               string
	ActivityID        string
	Points            int
	ComplaintID       string
	EvidenceReference string
	Title             string
	Description       string
}

// Notarizer submits records and returns the transaction hash. Status reports
// on a hash returned earlier, including one carried by a PendingError.
type Notarizer interface {
	Notarize(ctx context.Context, rec Record) (string, error)
	Status(ctx context.Context, hash string) (TxState, error)
}

// Config holds connection parameters.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ReceiptTimeout  time.Duration
}

type boundContract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

type txReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type minedWaiter func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

// ContractNotarizer talks to the deployed contract through an RPC endpoint.
type ContractNotarizer struct {
	contract       boundContract
	chain          txReader
	waitMined      minedWaiter
	key            *ecdsa.PrivateKey
	chainID        *big.Int
	receiptTimeout time.Duration
	logger         *zap.Logger
	close          func()
}

// Dial connects to the RPC endpoint and binds the contract.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*ContractNotarizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("notary: invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("notary: parse private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("notary: parse abi: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("notary: dial %s: %w", cfg.RPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("notary: chain id: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(address, parsed, client, client, client)

	n := newContractNotarizer(contract, client, func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return bind.WaitMined(ctx, client, tx)
	}, key, chainID, cfg.ReceiptTimeout, logger)
	n.close = client.Close

	logger.Info("notary connected",
		zap.String("contract", address.Hex()),
		zap.String("chain_id", chainID.String()),
		zap.String("sender", crypto.PubkeyToAddress(key.PublicKey).Hex()),
	)
	return n, nil
}

func newContractNotarizer(contract boundContract, chain txReader, wait minedWaiter, key *ecdsa.PrivateKey, chainID *big.Int, receiptTimeout time.Duration, logger *zap.Logger) *ContractNotarizer {
	if receiptTimeout <= 0 {
		receiptTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContractNotarizer{
		contract:       contract,
		chain:          chain,
		waitMined:      wait,
		key:            key,
		chainID:        chainID,
		receiptTimeout: receiptTimeout,
		logger:         logger,
	}
}

// Notarize submits the record and blocks until the transaction is mined or
// the receipt timeout elapses. Once broadcast, a missing receipt is reported
// as a *PendingError so the hash is never lost.
func (n *ContractNotarizer) Notarize(ctx context.Context, rec Record) (string, error) {
	held, err := n.isNotarized(ctx, rec.ComplaintID)
	if err != nil {
		return "", err
	}
	if held {
		return "", ErrAlreadyNotarized
	}

	auth, err := bind.NewKeyedTransactorWithChainID(n.key, n.chainID)
	if err != nil {
		return "", fmt.Errorf("notary: transactor: %w", err)
	}
	auth.Context = ctx

	tx, err := n.contract.Transact(auth, "approveComplaint",
		rec.USN,
		rec.ActivityID,
		big.NewInt(int64(rec.Points)),
		rec.ComplaintID,
		rec.EvidenceReference,
		rec.Title,
		rec.Description,
	)
	if err != nil {
		return "", fmt.Errorf("notary: submit: %w", err)
	}
	hash := tx.Hash().Hex()
	n.logger.Info("notarization submitted", zap.String("complaint_id", rec.ComplaintID), zap.String("tx", hash))

	waitCtx, cancel := context.WithTimeout(ctx, n.receiptTimeout)
	defer cancel()
	receipt, err := n.waitMined(waitCtx, tx)
	if err != nil {
		return "", &PendingError{Hash: hash, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("notary: transaction %s reverted", hash)
	}
	return hash, nil
}

// Status looks a transaction up by hash.
func (n *ContractNotarizer) Status(ctx context.Context, hash string) (TxState, error) {
	h := common.HexToHash(hash)
	_, pending, err := n.chain.TransactionByHash(ctx, h)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return TxUnknown, nil
	case err != nil:
		return TxUnknown, fmt.Errorf("notary: lookup tx %s: %w", hash, err)
	case pending:
		return TxPending, nil
	}
	receipt, err := n.chain.TransactionReceipt(ctx, h)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return TxPending, nil
	case err != nil:
		return TxUnknown, fmt.Errorf("notary: receipt %s: %w", hash, err)
	case receipt.Status == types.ReceiptStatusSuccessful:
		return TxMined, nil
	default:
		return TxReverted, nil
	}
}

func (n *ContractNotarizer) isNotarized(ctx context.Context, complaintID string) (bool, error) {
	var out []interface{}
	if err := n.contract.Call(&bind.CallOpts{Context: ctx}, &out, "complaints", complaintID); err != nil {
		return false, fmt.Errorf("notary: lookup %s: %w", complaintID, err)
	}
	if len(out) == 0 {
		return false, nil
	}
	usn, _ := out[0].(string)
	return usn != "", nil
}

// Close releases the RPC connection.
func (n *ContractNotarizer) Close() {
	if n.close != nil {
		n.close()
	}
}

// ExplorerLink joins a block explorer base URL and a transaction hash.
func ExplorerLink(base, hash string) string {
	if base == "" || hash == "" {
		return ""
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + hash
}
