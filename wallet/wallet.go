// Package wallet holds an ed25519 keypair, builds and signs operations,
// and persists keys in an encrypted keystore.
package wallet

import (
	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/crypto"
)

// Wallet holds a key pair and provides operation-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as the account
// address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewOp creates a signed operation. engineID must match the target
// deployment; nonce must match the account's current nonce.
func (w *Wallet) NewOp(engineID string, typ core.OpType, nonce uint64, payload any) (*core.Operation, error) {
	op, err := core.NewOperation(engineID, typ, w.pub.Hex(), nonce, payload)
	if err != nil {
		return nil, err
	}
	op.Sign(w.priv)
	return op, nil
}

// Transfer creates a signed transfer of the given token; an empty token
// selects the native token.
func (w *Wallet) Transfer(engineID, token, to string, amount, nonce uint64) (*core.Operation, error) {
	return w.NewOp(engineID, core.OpTransfer, nonce, core.TransferPayload{
		Token:  token,
		To:     to,
		Amount: amount,
	})
}

// Approve creates a signed allowance grant for spender.
func (w *Wallet) Approve(engineID, token, spender string, amount, nonce uint64) (*core.Operation, error) {
	return w.NewOp(engineID, core.OpApprove, nonce, core.ApprovePayload{
		Token:   token,
		Spender: spender,
		Amount:  amount,
	})
}

// BuyFromReserve creates a signed exchange purchase spending payment units.
func (w *Wallet) BuyFromReserve(engineID string, payment, nonce uint64) (*core.Operation, error) {
	return w.NewOp(engineID, core.OpExchangePurchase, nonce, core.ExchangePurchasePayload{
		PaymentAmount: payment,
	})
}

// SellToReserve creates a signed sell-back of native tokens.
func (w *Wallet) SellToReserve(engineID string, amount, nonce uint64) (*core.Operation, error) {
	return w.NewOp(engineID, core.OpExchangeSell, nonce, core.ExchangeSellPayload{
		Amount: amount,
	})
}

// Stake creates a signed time-locked stake.
func (w *Wallet) Stake(engineID string, amount, durationSeconds, nonce uint64) (*core.Operation, error) {
	return w.NewOp(engineID, core.OpStake, nonce, core.StakePayload{
		Amount:          amount,
		DurationSeconds: durationSeconds,
	})
}
