package gateway

import (
	"context"
	"errors"

	"spyoptions/internal/contracts"
)

// ErrNotFound is returned by ResolveContract when the gateway's
// symbol-resolution reports the contract does not exist.
var ErrNotFound = errors.New("gateway: contract not found")

// Handle is an opaque subscription handle, owned by the gateway client.
// The subscription manager never inspects it — only holds and cancels it.
type Handle interface{}

// Gateway is the broker-gateway client contract. It is the single external
// collaborator (spec.md §1) the subscription manager and scan loop talk to;
// this module implements it with a generic websocket-based client
// (internal/gateway/wsclient.go) since the wire protocol of a specific
// broker is out of scope (spec.md §1).
type Gateway interface {
	// Connected reports whether the gateway connection is currently live.
	Connected() bool

	// UnderlyingPrice returns the latest known SPY price, or (0, false) if
	// none has been observed yet.
	UnderlyingPrice() (float64, bool)

	// PreviousClose returns the previous-session close captured once at
	// session open, or (0, false) if it has not been captured yet.
	PreviousClose() (float64, bool)

	// ResolveContract qualifies a (strike, side) contract via the
	// gateway's symbol resolution. Returns ErrNotFound if the gateway
	// reports the contract does not exist.
	ResolveContract(ctx context.Context, key contracts.ContractKey) error

	// Subscribe requests live market data for key and returns a handle.
	Subscribe(ctx context.Context, key contracts.ContractKey) (Handle, error)

	// Unsubscribe cancels a previously issued subscription.
	Unsubscribe(ctx context.Context, handle Handle) error

	// LatestQuote returns the most recently observed quote for key, if any.
	LatestQuote(key contracts.ContractKey) (contracts.Quote, bool)
}
