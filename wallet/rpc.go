package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

// RPCConfig holds the connection details of a wallet daemon.
type RPCConfig struct {
	// Host is the host:port of the wallet's JSON-RPC interface.
	Host string

	// User is the RPC user name.
	User string

	// Pass is the RPC password.
	Pass string

	// TLSCert is the PEM encoded certificate of the RPC server. TLS is
	// disabled when empty.
	TLSCert []byte
}

// RPCClient implements Client on top of a bitcoind-style JSON-RPC wallet.
// Address specific calls are issued as raw requests so that addresses of
// chains unknown to btcd can be handled.
type RPCClient struct {
	rpc *rpcclient.Client
}

// A compile time check to ensure RPCClient implements Client.
var _ Client = (*RPCClient)(nil)

// NewRPCClient connects to the wallet in HTTP POST mode.
func NewRPCClient(cfg *RPCConfig) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   len(cfg.TLSCert) == 0,
		Certificates: cfg.TLSCert,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create rpc client for %v: %w",
			cfg.Host, err)
	}

	return &RPCClient{rpc: client}, nil
}

// Stop shuts the underlying client down.
func (r *RPCClient) Stop() {
	r.rpc.Shutdown()
}

// ValidateAddress calls validateaddress.
func (r *RPCClient) ValidateAddress(ctx context.Context,
	address string) (*AddressInfo, error) {

	resp, err := r.request(ctx, "validateaddress", address)
	if err != nil {
		return nil, err
	}

	var info AddressInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("decode validateaddress: %w", err)
	}

	return &info, nil
}

// GetBalance calls getbalance.
func (r *RPCClient) GetBalance(ctx context.Context) (btcutil.Amount, error) {
	resp, err := r.request(ctx, "getbalance")
	if err != nil {
		return 0, err
	}

	var balance float64
	if err := json.Unmarshal(resp, &balance); err != nil {
		return 0, fmt.Errorf("decode getbalance: %w", err)
	}

	return btcutil.NewAmount(balance)
}

// rawTransaction is the part of a verbose getrawtransaction reply the relay
// reads.
type rawTransaction struct {
	AnonDestination string `json:"anon-destination"`
}

// ListUnspent calls listunspent and fetches the attached destination of
// every output's transaction.
func (r *RPCClient) ListUnspent(ctx context.Context) ([]*Unspent, error) {
	resp, err := r.request(ctx, "listunspent")
	if err != nil {
		return nil, err
	}

	var results []btcjson.ListUnspentResult
	if err := json.Unmarshal(resp, &results); err != nil {
		return nil, fmt.Errorf("decode listunspent: %w", err)
	}

	unspent := make([]*Unspent, 0, len(results))
	for _, result := range results {
		txid, err := chainhash.NewHashFromStr(result.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid txid %v: %w",
				result.TxID, err)
		}

		amount, err := btcutil.NewAmount(result.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for %v: %w",
				result.TxID, err)
		}

		destination, err := r.anonDestination(ctx, result.TxID)
		if err != nil {
			return nil, err
		}

		unspent = append(unspent, &Unspent{
			TxID:            *txid,
			Vout:            result.Vout,
			Address:         result.Address,
			Account:         result.Account,
			Amount:          amount,
			Confirmations:   result.Confirmations,
			Spendable:       result.Spendable,
			AnonDestination: destination,
		})
	}

	log.Debugf("Listed %d unspent outputs", len(unspent))

	return unspent, nil
}

// anonDestination fetches the destination attached to a transaction. A
// transaction that cannot be fetched or decoded yields an empty destination
// so the output is returned to its sender instead of failing the listing.
// Only a done context is reported as an error.
func (r *RPCClient) anonDestination(ctx context.Context,
	txid string) (string, error) {

	rawResp, err := r.request(ctx, "getrawtransaction", txid, 1)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		log.Debugf("No destination for %v: %v", txid, err)

		return "", nil
	}

	var raw rawTransaction
	if err := json.Unmarshal(rawResp, &raw); err != nil {
		log.Debugf("No destination for %v: decode transaction: %v",
			txid, err)

		return "", nil
	}

	return raw.AnonDestination, nil
}

// SendToAddress calls sendtoaddress with the attachment in the trailing
// data parameter.
func (r *RPCClient) SendToAddress(ctx context.Context, address string,
	amount btcutil.Amount, attachment string) (string, error) {

	resp, err := r.request(
		ctx, "sendtoaddress", address, amount.ToBTC(), "", "", false,
		attachment,
	)
	if err != nil {
		return "", err
	}

	var txid string
	if err := json.Unmarshal(resp, &txid); err != nil {
		return "", fmt.Errorf("decode sendtoaddress: %w", err)
	}

	return txid, nil
}

// request issues a raw JSON-RPC call, returning early if ctx is done.
func (r *RPCClient) request(ctx context.Context, method string,
	params ...interface{}) (json.RawMessage, error) {

	rawParams := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		raw, err := json.Marshal(param)
		if err != nil {
			return nil, err
		}
		rawParams = append(rawParams, raw)
	}

	type result struct {
		resp json.RawMessage
		err  error
	}
	resultChan := make(chan result, 1)

	go func() {
		resp, err := r.rpc.RawRequest(method, rawParams)
		resultChan <- result{resp: resp, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return nil, fmt.Errorf("%v: %w", method, res.err)
		}

		return res.resp, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
