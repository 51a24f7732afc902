package wallet

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrEmptyAddressList is returned when asked to validate no addresses.
	ErrEmptyAddressList = errors.New("no addresses to validate")
)

// AddressInfo is the wallet's verdict on a single address.
type AddressInfo struct {
	// Address is the address as echoed by the wallet.
	Address string `json:"address"`

	// IsValid is true if the address is valid on the wallet's chain.
	IsValid bool `json:"isvalid"`

	// IsMine is true if the wallet owns the address.
	IsMine bool `json:"ismine"`
}

// Unspent is a read-only snapshot of an unspent output held by the wallet.
type Unspent struct {
	// TxID is the hash of the transaction holding the output.
	TxID chainhash.Hash

	// Vout is the output index.
	Vout uint32

	// Address is the address the output pays to.
	Address string

	// Account is the wallet account the address belongs to.
	Account string

	// Amount is the value of the output.
	Amount btcutil.Amount

	// Confirmations is the number of confirmations of the output.
	Confirmations int64

	// Spendable is set when the wallet holds the key for the output.
	Spendable bool

	// AnonDestination is the encrypted destination attached by the sender
	// of the transaction.
	AnonDestination string
}

// Client is the wallet RPC surface the relay needs.
type Client interface {
	// ValidateAddress checks a single address.
	ValidateAddress(ctx context.Context, address string) (*AddressInfo,
		error)

	// ListUnspent returns the wallet's current unspent outputs.
	ListUnspent(ctx context.Context) ([]*Unspent, error)

	// GetBalance returns the wallet's spendable balance.
	GetBalance(ctx context.Context) (btcutil.Amount, error)

	// SendToAddress pays amount to address with the attachment carried
	// alongside the transfer. It returns the id of the sending
	// transaction, empty if the wallet did not send.
	SendToAddress(ctx context.Context, address string,
		amount btcutil.Amount, attachment string) (string, error)
}

// ValidateAddresses returns true if every address is valid according to the
// wallet. The first invalid address short-circuits the check.
func ValidateAddresses(ctx context.Context, client Client,
	addresses []string) (bool, error) {

	if len(addresses) == 0 {
		return false, ErrEmptyAddressList
	}

	for _, address := range addresses {
		info, err := client.ValidateAddress(ctx, address)
		if err != nil {
			return false, err
		}

		if info == nil || !info.IsValid {
			log.Debugf("Address %v rejected by wallet", address)

			return false, nil
		}
	}

	return true, nil
}
