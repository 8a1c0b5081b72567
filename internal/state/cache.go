package state

import (
	"sort"
	"sync"

	"multiaccount-trade/pkg/cache"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Cache is the latest known state of every gateway, keyed by stable ids:
//
//	quotes, contracts   vt symbol        (symbol.EXCHANGE)
//	orders              vt order id      (gateway.orderid)
//	trades              vt trade id      (gateway.tradeid)
//	positions           vt position id   (gateway.symbol.EXCHANGE.DIRECTION)
//	accounts            gateway name
//
// Writes come from bus handlers only (see Register); reads are safe from any
// goroutine and return copies.
type Cache struct {
	quotes    *cache.Sharded[exchange.Quote]
	contracts *cache.Sharded[exchange.Contract]
	trades    *registry[exchange.Trade]
	positions *registry[exchange.Position]
	accounts  *registry[exchange.Account]

	// orders and the active index share one lock so a reader never sees an
	// order whose index membership disagrees with its status.
	omu    sync.RWMutex
	orders map[string]exchange.Order
	okeys  []string
	active map[string]exchange.Order
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		quotes:    cache.NewSharded[exchange.Quote](),
		contracts: cache.NewSharded[exchange.Contract](),
		trades:    newRegistry[exchange.Trade](),
		positions: newRegistry[exchange.Position](),
		accounts:  newRegistry[exchange.Account](),
		orders:    make(map[string]exchange.Order),
		active:    make(map[string]exchange.Order),
	}
}

// UpsertQuote replaces the quote of the symbol.
func (c *Cache) UpsertQuote(q exchange.Quote) {
	c.quotes.Set(q.VTSymbol(), q)
}

// UpsertContract stores a contract unless one is already cached for the
// symbol. It reports whether the contract was stored.
func (c *Cache) UpsertContract(ct exchange.Contract) bool {
	return c.contracts.SetIfAbsent(ct.VTSymbol(), ct)
}

// UpsertOrder replaces the order and recomputes its active-index membership.
func (c *Cache) UpsertOrder(o exchange.Order) {
	id := o.VTOrderID()

	c.omu.Lock()
	defer c.omu.Unlock()
	if _, ok := c.orders[id]; !ok {
		c.okeys = append(c.okeys, id)
	}
	c.orders[id] = o
	if o.IsActive() {
		c.active[id] = o
	} else {
		delete(c.active, id)
	}
}

// UpsertTrade records a trade. A redelivered trade id keeps the first record;
// the result reports whether t was stored.
func (c *Cache) UpsertTrade(t exchange.Trade) bool {
	return c.trades.putIfAbsent(t.VTTradeID(), t)
}

// UpsertPosition replaces the position.
func (c *Cache) UpsertPosition(p exchange.Position) {
	c.positions.put(p.VTPositionID(), p)
}

// UpsertAccount replaces the account of the gateway.
func (c *Cache) UpsertAccount(a exchange.Account) {
	c.accounts.put(a.GatewayName, a)
}

func (c *Cache) Quote(vtSymbol string) (exchange.Quote, bool) { return c.quotes.Get(vtSymbol) }
func (c *Cache) Quotes() []exchange.Quote                     { return c.quotes.Values() }

func (c *Cache) Contract(vtSymbol string) (exchange.Contract, bool) {
	return c.contracts.Get(vtSymbol)
}
func (c *Cache) Contracts() []exchange.Contract { return c.contracts.Values() }

func (c *Cache) Trade(vtTradeID string) (exchange.Trade, bool) { return c.trades.get(vtTradeID) }
func (c *Cache) Trades() []exchange.Trade                      { return c.trades.all() }

func (c *Cache) Position(vtPositionID string) (exchange.Position, bool) {
	return c.positions.get(vtPositionID)
}
func (c *Cache) Positions() []exchange.Position { return c.positions.all() }

func (c *Cache) Account(gatewayName string) (exchange.Account, bool) {
	return c.accounts.get(gatewayName)
}
func (c *Cache) Accounts() []exchange.Account { return c.accounts.all() }

func (c *Cache) Order(vtOrderID string) (exchange.Order, bool) {
	c.omu.RLock()
	defer c.omu.RUnlock()
	o, ok := c.orders[vtOrderID]
	return o, ok
}

// Orders returns every known order in first-seen order.
func (c *Cache) Orders() []exchange.Order {
	c.omu.RLock()
	defer c.omu.RUnlock()
	res := make([]exchange.Order, 0, len(c.okeys))
	for _, k := range c.okeys {
		res = append(res, c.orders[k])
	}
	return res
}

// ActiveOrder returns the order only while it is in a non-terminal status.
func (c *Cache) ActiveOrder(vtOrderID string) (exchange.Order, bool) {
	c.omu.RLock()
	defer c.omu.RUnlock()
	o, ok := c.active[vtOrderID]
	return o, ok
}

// ActiveOrders returns all non-terminal orders ordered by vt order id.
func (c *Cache) ActiveOrders() []exchange.Order {
	c.omu.RLock()
	res := make([]exchange.Order, 0, len(c.active))
	for _, o := range c.active {
		res = append(res, o)
	}
	c.omu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].VTOrderID() < res[j].VTOrderID() })
	return res
}

// Counts summarizes cache sizes.
type Counts struct {
	Quotes       int `json:"quotes"`
	Contracts    int `json:"contracts"`
	Orders       int `json:"orders"`
	ActiveOrders int `json:"active_orders"`
	Trades       int `json:"trades"`
	Positions    int `json:"positions"`
	Accounts     int `json:"accounts"`
}

func (c *Cache) Counts() Counts {
	c.omu.RLock()
	orders, active := len(c.orders), len(c.active)
	c.omu.RUnlock()

	return Counts{
		Quotes:       c.quotes.Len(),
		Contracts:    c.contracts.Len(),
		Orders:       orders,
		ActiveOrders: active,
		Trades:       c.trades.len(),
		Positions:    c.positions.len(),
		Accounts:     c.accounts.len(),
	}
}
