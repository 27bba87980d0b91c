package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// Challenge is the statement an actor signs to authenticate. The nonce is
// caller-chosen; hosts that care about replay track nonces per actor.
type Challenge struct {
	Actor     string
	Timestamp int64
	Nonce     int64
}

// Authenticator verifies signed challenges and mints the capabilities the
// engine's authority checks consume. The engine itself never sees a
// signature, only the minted capability.
type Authenticator struct {
	clock   domain.Clock
	maxSkew time.Duration
}

// NewAuthenticator creates an Authenticator. maxSkew bounds how far a
// challenge timestamp may drift from the clock; zero disables the check.
func NewAuthenticator(clock domain.Clock, maxSkew time.Duration) *Authenticator {
	return &Authenticator{clock: clock, maxSkew: maxSkew}
}

// Verify checks that sigHex is a valid secp256k1 signature over the
// challenge digest and that it recovers to the challenge's actor address.
func (a *Authenticator) Verify(ch Challenge, sigHex string) error {
	if a.maxSkew > 0 {
		now := a.clock.Now()
		at := time.Unix(ch.Timestamp, 0).UTC()
		if at.Before(now.Add(-a.maxSkew)) || at.After(now.Add(a.maxSkew)) {
			return fmt.Errorf("%w: challenge timestamp %d outside ±%s of %s",
				domain.ErrInvalidTimestamp, ch.Timestamp, a.maxSkew, now.Format(time.RFC3339))
		}
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return fmt.Errorf("%w: malformed signature: %v", domain.ErrUnauthorized, err)
	}
	if len(sig) != 65 {
		return fmt.Errorf("%w: signature must be 65 bytes, got %d", domain.ErrUnauthorized, len(sig))
	}

	// Recovery expects v in {0,1}; signers put {27,28} on the wire.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	digest := AuthDigest(ch.Actor, ch.Timestamp, ch.Nonce)
	pub, err := ethcrypto.SigToPub(digest, recSig)
	if err != nil {
		return fmt.Errorf("%w: signature recovery: %v", domain.ErrUnauthorized, err)
	}

	recovered := ethcrypto.PubkeyToAddress(*pub)
	if !strings.EqualFold(recovered.Hex(), ch.Actor) {
		return fmt.Errorf("%w: signature recovers to %s, not %s",
			domain.ErrUnauthorized, recovered.Hex(), ch.Actor)
	}
	return nil
}

// MintCapability verifies the challenge signature and returns a capability
// whose role reflects the actor's standing in cfg.
func (a *Authenticator) MintCapability(cfg domain.GlobalConfig, ch Challenge, sigHex string, reputation int64) (domain.Capability, error) {
	if err := a.Verify(ch, sigHex); err != nil {
		return domain.Capability{}, err
	}
	return domain.Capability{
		Actor:      ch.Actor,
		Role:       RoleFor(cfg, ch.Actor),
		Reputation: reputation,
	}, nil
}

// RoleFor maps an actor address to its role under the given configuration.
// Unknown addresses are traders. Comparison is case-insensitive since hex
// addresses circulate in mixed checksum forms.
func RoleFor(cfg domain.GlobalConfig, actor string) domain.Role {
	switch {
	case strings.EqualFold(actor, cfg.Admin):
		return domain.RoleAdmin
	case strings.EqualFold(actor, cfg.GovernanceAuthority):
		return domain.RoleGovernance
	case strings.EqualFold(actor, cfg.AggregationAuthority):
		return domain.RoleAggregator
	default:
		return domain.RoleTrader
	}
}
