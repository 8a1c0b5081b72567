package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// walk moves every subscribed price by -1, 0 or +1 tick per interval and
// publishes a quote for it.
func (g *Gateway) walk(ctx context.Context, interval time.Duration) {
	defer g.wg.Done()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.mu.Lock()
			for vt := range g.subscribed {
				c := g.contracts[vt]
				step := c.PriceTick.Mul(decimal.NewFromInt(int64(rnd.Intn(3) - 1)))
				next := g.prices[vt].Add(step)
				if next.GreaterThan(c.PriceTick) {
					g.prices[vt] = next
				}
				g.publishQuoteLocked(vt)
			}
			g.mu.Unlock()
		}
	}
}
