package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part used when rendering addresses.
type AddressPrefix string

const (
	// WalletPrefix tags user and module addresses.
	WalletPrefix AddressPrefix = "slnd"
)

// AddressLength is the size of an address in bytes.
const AddressLength = 20

// Address is the fixed-size public identifier of an account. It is comparable
// so it can key maps directly.
type Address [AddressLength]byte

var errAddressLength = errors.New("crypto: address must be 20 bytes long")

// BytesToAddress copies b into an Address. b must be exactly AddressLength
// bytes long.
func BytesToAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, errAddressLength
	}
	copy(a[:], b)
	return a, nil
}

// MustBytesToAddress is BytesToAddress for inputs known to be valid.
func MustBytesToAddress(b []byte) Address {
	a, err := BytesToAddress(b)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(WalletPrefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether every byte of the address is zero.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText renders the bech32 form so addresses serialise readably in JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the bech32 form.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if AddressPrefix(prefix) != WalletPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	return Address(crypto.PubkeyToAddress(*k.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// RecoverAddress returns the address whose key produced sig over digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, err
	}
	return Address(crypto.PubkeyToAddress(*pub)), nil
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}
