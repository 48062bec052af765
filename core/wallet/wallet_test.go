package wallet

import (
	"testing"

	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

func TestNewFromMnemonicIsDeterministic(t *testing.T) {
	w1, mnemonic, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	w2, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("NewFromMnemonic (recovery): %v", err)
	}
	if w1.Address() != w2.Address() {
		t.Errorf("recovering from the same mnemonic produced a different address: %s != %s", w1.Address(), w2.Address())
	}
}

func TestDifferentPassphraseDerivesDifferentWallet(t *testing.T) {
	_, mnemonic, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	w1, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("NewFromMnemonic (no passphrase): %v", err)
	}
	w2, err := NewFromMnemonic(mnemonic, "a passphrase")
	if err != nil {
		t.Fatalf("NewFromMnemonic (with passphrase): %v", err)
	}
	if w1.Address() == w2.Address() {
		t.Error("different passphrases over the same mnemonic should derive different wallets")
	}
}

func TestSignTransactionRejectsMismatchedSender(t *testing.T) {
	w, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tx := types.NewTransaction(types.Address("bt2c_not_this_wallets_address!"), w.Address(), types.MustParseAmount("1"), types.ZeroAmount, 0, 1700000000, types.TxTransfer, nil)
	if err := w.SignTransaction(tx); err == nil {
		t.Error("expected error signing a transaction whose sender does not match the wallet")
	}
}

func TestSignTransactionVerifiesUnderWalletPublicKey(t *testing.T) {
	w, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tx := types.NewTransaction(w.Address(), w.Address(), types.MustParseAmount("1"), types.ZeroAmount, 0, 1700000000, types.TxTransfer, nil)
	if err := w.SignTransaction(tx); err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}
	if !tx.VerifySignature(w.PublicKey()) {
		t.Error("transaction signed by the wallet failed to verify under the wallet's own public key")
	}
}

func TestSignBlockRejectsMismatchedValidator(t *testing.T) {
	w, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	block := types.NewBlock(1, types.ZeroHash, 1700000000, types.Address("bt2c_not_this_wallets_address!"), 0, nil)
	if err := w.SignBlock(block); err == nil {
		t.Error("expected error signing a block whose validator does not match the wallet")
	}
}
