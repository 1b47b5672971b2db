package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"allocation-generator/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// SyrupDrip ABI for isClaimed(uint256) and maxId()
const syrupDripABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"name": "isClaimed",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "maxId",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ContractCaller the subset of ethclient.Client used for read-only calls
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SyrupDripClient reads allocation claim state from the SyrupDrip contract
type SyrupDripClient struct {
	caller  ContractCaller
	closer  func()
	address common.Address
	abi     abi.ABI
	timeout time.Duration
	logger  logrus.FieldLogger
}

// DialSyrupDrip connects to rpcURL and returns a client for the contract at
// contractAddress
func DialSyrupDrip(ctx context.Context, rpcURL, contractAddress string, timeout time.Duration, logger logrus.FieldLogger) (*SyrupDripClient, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid SyrupDrip address: %s", contractAddress)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	c, err := NewSyrupDripClient(client, common.HexToAddress(contractAddress), timeout, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.closer = client.Close

	logger.WithFields(logrus.Fields{
		"contract": c.address.Hex(),
	}).Info("🔌 Connected to claim registry")

	return c, nil
}

// NewSyrupDripClient creates a client on top of an existing caller
func NewSyrupDripClient(caller ContractCaller, address common.Address, timeout time.Duration, logger logrus.FieldLogger) (*SyrupDripClient, error) {
	parsedABI, err := abi.JSON(strings.NewReader(syrupDripABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &SyrupDripClient{
		caller:  caller,
		address: address,
		abi:     parsedABI,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// CurrentMaxID reads maxId(), the highest id assigned by previous runs
func (c *SyrupDripClient) CurrentMaxID(ctx context.Context) (int64, error) {
	var maxID *big.Int
	if err := c.call(ctx, "maxId", &maxID); err != nil {
		return 0, err
	}

	if !maxID.IsInt64() {
		return 0, fmt.Errorf("maxId %s does not fit in int64", maxID)
	}

	c.logger.WithFields(logrus.Fields{
		"max_id": maxID.Int64(),
	}).Info("📋 Read current maximum allocation id")

	return maxID.Int64(), nil
}

// IsClaimed reads isClaimed(id)
func (c *SyrupDripClient) IsClaimed(ctx context.Context, id int64) (bool, error) {
	var claimed bool
	if err := c.call(ctx, "isClaimed", &claimed, big.NewInt(id)); err != nil {
		return false, err
	}
	return claimed, nil
}

// Close releases the underlying RPC connection
func (c *SyrupDripClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// call packs method, executes it against the latest block and unpacks the
// single return value into out
func (c *SyrupDripClient) call(ctx context.Context, method string, out interface{}, args ...interface{}) error {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.RegistryCalls.WithLabelValues(method, status).Inc()
		metrics.RegistryCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg := ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	}

	result, err := c.caller.CallContract(callCtx, msg, nil)
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	if err := c.abi.UnpackIntoInterface(out, method, result); err != nil {
		status = "error"
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}

	return nil
}
