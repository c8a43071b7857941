package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/speedrun-hq/speedrun-settlement/pkg/contracts"
)

// Client is a connection to the chain the settlement oracle lives on
type Client struct {
	Ctx            context.Context
	ChainID        *big.Int
	RPCURL         string
	OracleAddress  common.Address
	Client         *ethclient.Client
	OracleContract *contracts.SettlementOracle
}

// New dials rpcURL and binds the oracle contract at oracleAddress
func New(ctx context.Context, rpcURL string, oracleAddress common.Address) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client := &Client{
		Ctx:           ctx,
		RPCURL:        rpcURL,
		OracleAddress: oracleAddress,
	}
	if err := client.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to oracle chain: %v", err)
	}
	return client, nil
}

// GetLatestBlockNumber gets the latest block number from the chain
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	if c.Client == nil {
		return 0, fmt.Errorf("client not connected")
	}
	return c.Client.BlockNumber(ctx)
}

// Close releases the RPC connection
func (c *Client) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// connect establishes the RPC connection and initializes the contract binding
func (c *Client) connect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, c.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to client: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	chainID, err := client.ChainID(timeoutCtx)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to get chain ID: %v", err)
	}

	contract, err := contracts.NewSettlementOracle(c.OracleAddress, client)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to initialize contract: %v", err)
	}

	c.Client = client
	c.ChainID = chainID
	c.OracleContract = contract
	return nil
}
