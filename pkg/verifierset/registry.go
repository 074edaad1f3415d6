// Package verifierset implements the write-once verifier-set tracker
// registry (C2): register(verifier_set_hash, epoch), called by rotation and
// by the server's genesis register_verifier_set route, and
// lookup(verifier_set_hash) plus the retention-window acceptance
// policy evaluated at signature-verification time.
package verifierset

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/axelar-network/solana-gateway-core/pkg/discriminator"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
)

var (
	ErrTrackerAlreadyExists = errors.New("verifierset: tracker already exists")
	ErrTrackerNotFound      = errors.New("verifierset: tracker not found")
	ErrVerifierSetTooOld    = errors.New("verifierset: verifier set epoch outside retention window")
	ErrVerifierSetFromFuture = errors.New("verifierset: verifier set epoch is ahead of current epoch")
)

var accountDiscriminator = discriminator.Account("VerifierSetTracker")

func key(verifierSetHash [32]byte) []byte {
	k := make([]byte, 0, len(accountDiscriminator)+32)
	k = append(k, accountDiscriminator[:]...)
	k = append(k, verifierSetHash[:]...)
	return k
}

// Tracker records the epoch at which a verifier set became known. Once
// created it is immutable; rotation always creates a new tracker rather
// than updating an existing one.
type Tracker struct {
	VerifierSetHash [32]byte
	Epoch           *big.Int
	Bump            uint8
	CreatedAt       uint64 // host-clock timestamp, observability only
}

func encode(t *Tracker) []byte {
	buf := append([]byte(nil), accountDiscriminator[:]...)
	buf = append(buf, t.VerifierSetHash[:]...)
	buf = append(buf, t.Epoch.FillBytes(make([]byte, 32))...)
	buf = append(buf, t.Bump)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], t.CreatedAt)
	buf = append(buf, ts[:]...)
	return buf
}

func decode(raw []byte) (*Tracker, error) {
	prefixLen := len(accountDiscriminator)
	if len(raw) < prefixLen+32+32+1+8 {
		return nil, errors.New("verifierset: truncated tracker record")
	}
	i := prefixLen
	t := &Tracker{}
	copy(t.VerifierSetHash[:], raw[i:i+32])
	i += 32
	t.Epoch = new(big.Int).SetBytes(raw[i : i+32])
	i += 32
	t.Bump = raw[i]
	i++
	t.CreatedAt = binary.BigEndian.Uint64(raw[i : i+8])
	return t, nil
}

// Register creates a new tracker. Duplicate registration fails; the
// registry never updates an existing tracker.
func Register(kv store.KV, verifierSetHash [32]byte, epoch *big.Int, bump uint8, createdAt uint64) (*Tracker, error) {
	k := key(verifierSetHash)
	if has, err := kv.Has(k); err != nil {
		return nil, err
	} else if has {
		return nil, ErrTrackerAlreadyExists
	}

	t := &Tracker{
		VerifierSetHash: verifierSetHash,
		Epoch:           new(big.Int).Set(epoch),
		Bump:            bump,
		CreatedAt:       createdAt,
	}
	if err := kv.Set(k, encode(t)); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup reads a tracker by verifier-set hash.
func Lookup(kv store.KV, verifierSetHash [32]byte) (*Tracker, error) {
	raw, err := kv.Get(key(verifierSetHash))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTrackerNotFound
		}
		return nil, err
	}
	return decode(raw)
}

// AcceptedForSigning implements the retention policy: a set with epoch E
// is accepted iff current_epoch - E <= retention AND E <= current_epoch.
// Equality handles the current set.
func AcceptedForSigning(t *Tracker, currentEpoch, retention *big.Int) error {
	if t.Epoch.Cmp(currentEpoch) > 0 {
		return ErrVerifierSetFromFuture
	}
	age := new(big.Int).Sub(currentEpoch, t.Epoch)
	if age.Cmp(retention) > 0 {
		return ErrVerifierSetTooOld
	}
	return nil
}
