package engine

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"multiaccount-trade/internal/gateway"
	"multiaccount-trade/internal/monitor"
	"multiaccount-trade/internal/state"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Options configures New.
type Options struct {
	Logger zerolog.Logger

	// Gateway classes by name. Nil registers the sim class only.
	Classes *gateway.Classes
	// Exchanges whose closes are split into yesterday and today legs.
	AgingExchanges []exchange.Exchange
	// Gateway market data subscriptions go through; empty picks the first
	// gateway registered.
	SubscribeGateway string
	Registry         gateway.Config

	// Empty LogDir disables the log file sink.
	LogDir  string
	Console io.Writer

	LoadDir   string
	BackupDir string

	// Empty disables the order/trade journal.
	JournalPath  string
	JournalFlush time.Duration

	Env     string
	Version string
	NodeID  string
}

// GatewayStatus is one row of SystemStatus.Gateways.
type GatewayStatus struct {
	Name    string `json:"name"`
	Inited  bool   `json:"inited"`
	Healthy bool   `json:"healthy"`
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	NodeID           string                  `json:"node_id"`
	Env              string                  `json:"env"`
	Version          string                  `json:"version"`
	SubscribeGateway string                  `json:"subscribe_gateway"`
	AgingExchanges   []exchange.Exchange     `json:"aging_exchanges"`
	Gateways         []GatewayStatus         `json:"gateways"`
	GatewayClasses   []string                `json:"gateway_classes"`
	State            state.Counts            `json:"state"`
	PendingEvents    int                     `json:"pending_events"`
	Journal          bool                    `json:"journal"`
	Metrics          monitor.MetricsSnapshot `json:"metrics"`
	StartedAt        time.Time               `json:"started_at"`
	ServerTime       time.Time               `json:"server_time"`
}
