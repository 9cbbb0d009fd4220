package wallet

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/zeebo/blake3"
)

// DefaultAddressSpace is the default size of the derivation index space.
// Two invoice ids that hash to the same index share an address; at this
// size that is a birthday-bound possibility, not a guarantee against reuse.
const DefaultAddressSpace = 1_000_000

// Wallet is a derived key pair bound to one derivation index.
type Wallet struct {
	Address    ethcommon.Address
	PrivateKey *ecdsa.PrivateKey
	PublicKey  []byte // compressed, 33 bytes
	Index      uint32
	Path       string
}

// PrivateKeyHex returns the 0x-prefixed hex encoding of the private key.
func (w *Wallet) PrivateKeyHex() string {
	return fmt.Sprintf("0x%x", ethcrypto.FromECDSA(w.PrivateKey))
}

// Deriver turns invoice identifiers into reproducible receiving addresses.
// Derivation is a pure function of the master seed, the address-space size,
// and the invoice id; the used-index set is advisory bookkeeping only.
type Deriver struct {
	master *HDKey
	space  uint32

	mu   sync.Mutex
	used map[uint32]struct{}
	next uint32
}

// NewDeriver creates a Deriver from a 64-byte master seed. space is the
// size N of the index space; indices are always in [0, N).
func NewDeriver(seed []byte, space uint32) (*Deriver, error) {
	if space == 0 {
		space = DefaultAddressSpace
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return &Deriver{
		master: master,
		space:  space,
		used:   make(map[uint32]struct{}),
	}, nil
}

// AddressSpace returns the configured index space size N.
func (d *Deriver) AddressSpace() uint32 {
	return d.space
}

// IndexForID maps an invoice id to a derivation index: the first 8 bytes
// of BLAKE3(id), big-endian, reduced modulo the address-space size. Same
// id always yields the same index, across processes and restarts.
func (d *Deriver) IndexForID(invoiceID string) uint32 {
	sum := blake3.Sum256([]byte(invoiceID))
	prefix := binary.BigEndian.Uint64(sum[:8])
	return uint32(prefix % uint64(d.space))
}

// Derive derives the wallet at m/44'/60'/0'/0/index.
func (d *Deriver) Derive(index uint32) (*Wallet, error) {
	if index >= d.space {
		return nil, fmt.Errorf("index %d outside address space [0, %d)", index, d.space)
	}

	key, err := d.master.DeriveReceiving(index)
	if err != nil {
		return nil, fmt.Errorf("derive index %d: %w", index, err)
	}

	priv, err := key.ECDSA()
	if err != nil {
		return nil, fmt.Errorf("derive index %d: %w", index, err)
	}

	w := &Wallet{
		Address:    ethcrypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
		PublicKey:  key.PublicKeyBytes(),
		Index:      index,
		Path:       fmt.Sprintf("m/44'/60'/0'/0/%d", index),
	}

	d.mu.Lock()
	d.used[index] = struct{}{}
	d.mu.Unlock()

	return w, nil
}

// DeriveForID derives the wallet for an invoice id. This is the only entry
// point used by invoice creation; it has no side effects beyond the
// advisory used-index set and is safe to call concurrently.
func (d *Deriver) DeriveForID(invoiceID string) (*Wallet, error) {
	return d.Derive(d.IndexForID(invoiceID))
}

// GenerateNext derives the wallet at the lowest index not yet handed out
// by this process. Ad-hoc use only; the invoice flow derives by id.
func (d *Deriver) GenerateNext() (*Wallet, error) {
	d.mu.Lock()
	idx := d.next
	for {
		if idx >= d.space {
			d.mu.Unlock()
			return nil, fmt.Errorf("address space exhausted at %d indices", d.space)
		}
		if _, taken := d.used[idx]; !taken {
			break
		}
		idx++
	}
	d.next = idx + 1
	d.mu.Unlock()

	return d.Derive(idx)
}

// GenerateRandom creates a fresh random key pair outside the HD tree.
// Not used by the invoice flow.
func GenerateRandom() (*Wallet, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	key := priv.ToECDSA()
	return &Wallet{
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
		PublicKey:  priv.PubKey().SerializeCompressed(),
	}, nil
}
