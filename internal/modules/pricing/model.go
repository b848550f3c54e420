// README: Platform fee rate definition for each currency.
package pricing

import "gigmarket/internal/types"

// Rate is the platform's cut of a package price, in whole percent.
type Rate struct {
	Currency   string
	FeePercent int64
}

type Breakdown struct {
	Total             types.Money `json:"totalAmount"`
	PlatformFee       types.Money `json:"platformFee"`
	FreelancerEarning types.Money `json:"freelancerEarning"`
}
