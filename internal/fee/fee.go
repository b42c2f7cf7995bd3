// Package fee computes the service fee charged on outgoing transfers.
package fee

import (
	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/pkg/helpers"
)

// Compute returns the admin fee for sending amount to recipient under
// the given policy. The second return is false when no fee applies:
// the chain has no policy, or the recipient is the fee address itself.
// Otherwise the fee is amount*percent/100, raised to the policy
// minimum.
func Compute(policy *chain.FeePolicy, amount float64, recipient string) (float64, bool) {
	if policy == nil {
		return 0, false
	}
	if helpers.EqualAddress(recipient, policy.Address) {
		return 0, false
	}
	f := amount * policy.Percent / 100
	if f < policy.Min {
		f = policy.Min
	}
	return f, true
}
