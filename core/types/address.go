package types

import (
	"encoding/base32"
	"strings"

	"github.com/sa2shinakamo2/bt2c-sub002/core/crypto"
)

// AddressPrefix is the fixed textual prefix of every BT2C address.
const AddressPrefix = "bt2c_"

// AddressBodyLen is the number of base32 characters following the prefix.
const AddressBodyLen = 26

// AddressLen is the total length of a well-formed address string.
const AddressLen = len(AddressPrefix) + AddressBodyLen

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Address is a textual BT2C account identifier: "bt2c_" followed by 26
// lowercase base32 characters encoding the first 16 bytes of
// SHA-256(public-key-DER).
type Address string

// SystemAddress is the reserved sender/recipient used by ordinary per-block
// REWARD (coinbase) transactions, which skip signature verification.
const SystemAddress Address = "0"

// GenesisSystemAddress is the reserved sender/recipient used specifically by
// the genesis block's coinbase transaction.
var GenesisSystemAddress = Address(strings.Repeat("0", 64))

// IsSystemSender reports whether addr is one of the reserved, signature-free
// senders used for minted transactions.
func (a Address) IsSystemSender() bool {
	return a == SystemAddress || a == GenesisSystemAddress
}

// NewAddress derives the address for a public key's DER encoding:
// "bt2c_" + base32(lowercase, no padding)(SHA-256(pubKeyDER)[:16]).
func NewAddress(pubKeyDER []byte) Address {
	digest := crypto.SHA256(pubKeyDER)
	raw := digest[:16]
	body := strings.ToLower(addressEncoding.EncodeToString(raw))
	return Address(AddressPrefix + body)
}

// Valid reports whether the address matches the BT2C format: correct
// prefix, correct total length, and a valid base32 alphabet body. System
// addresses are always valid.
func (a Address) Valid() bool {
	if a.IsSystemSender() {
		return true
	}
	s := string(a)
	if !strings.HasPrefix(s, AddressPrefix) {
		return false
	}
	if len(s) != AddressLen {
		return false
	}
	body := strings.ToUpper(s[len(AddressPrefix):])
	_, err := addressEncoding.DecodeString(body)
	return err == nil
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return string(a)
}
