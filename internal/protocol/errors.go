package protocol

const (
	// Protocol/transport validation.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnauthorized = "E_UNAUTHORIZED"

	// Auction rule layer.
	ErrNotFound          = "E_NOT_FOUND"
	ErrAuctionEnded      = "E_AUCTION_ENDED"
	ErrAuctionNotEnded   = "E_AUCTION_NOT_ENDED"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrInvalidAddress    = "E_INVALID_ADDRESS"

	// Host collaborators (bank, asset registry).
	ErrNoResource = "E_NO_RESOURCE"

	ErrBusy     = "E_BUSY"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:        {},
	ErrUnauthorized:      {},
	ErrNotFound:          {},
	ErrAuctionEnded:      {},
	ErrAuctionNotEnded:   {},
	ErrInsufficientFunds: {},
	ErrInvalidAddress:    {},
	ErrNoResource:        {},
	ErrBusy:              {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
