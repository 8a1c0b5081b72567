package common

// Gateway abstracts one account connection to a trading venue.
//
// Calls are expected to return promptly. SendOrder returns the gateway-qualified
// order id (see GatewayID) that later order events will carry.
type Gateway interface {
	Name() string
	Connect(settings map[string]string) error
	Subscribe(req SubscribeRequest) error
	SendOrder(req OrderRequest) (string, error)
	CancelOrder(req CancelRequest) error
	Close() error
}

// Sink receives everything a gateway produces. Implementations must be safe
// for concurrent use since gateways call it from their own goroutines.
type Sink interface {
	OnQuote(Quote)
	OnOrder(Order)
	OnTrade(Trade)
	OnPosition(Position)
	OnAccount(Account)
	OnContract(Contract)
	OnLog(gatewayName, msg string, level Severity)
}

// Initer is implemented by gateways that load contracts asynchronously after Connect.
type Initer interface {
	ContractsInited() bool
}
