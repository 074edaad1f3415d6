// Package rotation implements the rotation engine (C7): it binds a
// completed signature-verification session to a new verifier-set
// registration, advancing the Gateway's epoch.
package rotation

import (
	"errors"

	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/gatewayconfig"
	"github.com/axelar-network/solana-gateway-core/pkg/merkle"
	"github.com/axelar-network/solana-gateway-core/pkg/session"
	"github.com/axelar-network/solana-gateway-core/pkg/store"
	"github.com/axelar-network/solana-gateway-core/pkg/verifierset"
)

var (
	ErrSessionNotValid        = errors.New("rotation: session has not reached quorum")
	ErrCooldownNotElapsed     = errors.New("rotation: minimum rotation delay has not elapsed")
	ErrTrackerAlreadyExists   = errors.New("rotation: new verifier set is already registered")
	ErrSigningSetNotCurrent   = errors.New("rotation: rotation must be signed by the current verifier set")
)

// Rotate advances the Gateway's verifier set. newVerifierSetHash is the
// session's payload root; currentVerifierSetHash is the set that signed
// the rotation. operatorSignaturePresent bypasses the cooldown (the
// operator fast path) but never bypasses the quorum requirement.
func Rotate(
	kv store.KV,
	cfg *gatewayconfig.Config,
	newVerifierSetHash [32]byte,
	currentVerifierSetHash [32]byte,
	operatorSignaturePresent bool,
	newTrackerBump uint8,
	now uint64,
) (*verifierset.Tracker, events.SignersRotated, error) {
	sess, err := session.Get(kv, newVerifierSetHash, merkle.PayloadTypeRotateSigners, currentVerifierSetHash)
	if err != nil {
		return nil, events.SignersRotated{}, err
	}
	if !sess.IsValid() {
		return nil, events.SignersRotated{}, ErrSessionNotValid
	}

	if !operatorSignaturePresent {
		elapsed := now - cfg.LastRotationTimestamp
		if elapsed < cfg.MinimumRotationDelay {
			return nil, events.SignersRotated{}, ErrCooldownNotElapsed
		}
	}

	switch _, err := verifierset.Lookup(kv, newVerifierSetHash); {
	case err == nil:
		return nil, events.SignersRotated{}, ErrTrackerAlreadyExists
	case !errors.Is(err, verifierset.ErrTrackerNotFound):
		return nil, events.SignersRotated{}, err
	}

	currentTracker, err := verifierset.Lookup(kv, currentVerifierSetHash)
	if err != nil {
		return nil, events.SignersRotated{}, err
	}
	if currentTracker.Epoch.Cmp(cfg.CurrentEpoch) != 0 {
		return nil, events.SignersRotated{}, ErrSigningSetNotCurrent
	}

	newCfg, err := gatewayconfig.ApplyRotation(kv, now)
	if err != nil {
		return nil, events.SignersRotated{}, err
	}

	tracker, err := verifierset.Register(kv, newVerifierSetHash, newCfg.CurrentEpoch, newTrackerBump, now)
	if err != nil {
		return nil, events.SignersRotated{}, err
	}

	return tracker, events.SignersRotated{
		NewEpoch: newCfg.CurrentEpoch,
		NewHash:  newVerifierSetHash,
	}, nil
}
