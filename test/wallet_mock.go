package test

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/subrelay/wallet"
	"github.com/stretchr/testify/mock"
)

// MockWallet is a wallet.Client whose calls are scripted with testify's mock
// package. Calls that were not set up panic.
type MockWallet struct {
	mock.Mock
}

// A compile time check to ensure MockWallet implements wallet.Client.
var _ wallet.Client = (*MockWallet)(nil)

// ValidateAddress mocks a validateaddress call.
func (m *MockWallet) ValidateAddress(ctx context.Context,
	address string) (*wallet.AddressInfo, error) {

	args := m.Called(ctx, address)
	info, _ := args.Get(0).(*wallet.AddressInfo)

	return info, args.Error(1)
}

// ListUnspent mocks a listunspent call.
func (m *MockWallet) ListUnspent(ctx context.Context) ([]*wallet.Unspent,
	error) {

	args := m.Called(ctx)
	unspent, _ := args.Get(0).([]*wallet.Unspent)

	return unspent, args.Error(1)
}

// GetBalance mocks a getbalance call.
func (m *MockWallet) GetBalance(ctx context.Context) (btcutil.Amount, error) {
	args := m.Called(ctx)
	balance, _ := args.Get(0).(btcutil.Amount)

	return balance, args.Error(1)
}

// SendToAddress mocks a sendtoaddress call.
func (m *MockWallet) SendToAddress(ctx context.Context, address string,
	amount btcutil.Amount, attachment string) (string, error) {

	args := m.Called(ctx, address, amount, attachment)

	return args.String(0), args.Error(1)
}

// ValidAddress returns a validateaddress reply for a valid address.
func ValidAddress(address string) *wallet.AddressInfo {
	return &wallet.AddressInfo{Address: address, IsValid: true}
}

// InvalidAddress returns a validateaddress reply for an invalid address.
func InvalidAddress(address string) *wallet.AddressInfo {
	return &wallet.AddressInfo{Address: address}
}
