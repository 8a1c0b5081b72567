package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"multiaccount-trade/pkg/crypto"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

var (
	ErrEncryptedWithoutKey = errors.New("encrypted setting found but no master key configured")
	ErrUnknownExchange     = errors.New("unknown exchange")
)

// DefaultAgingExchanges are the venues that split positions into today's and
// yesterday's volume when the gateway file does not say otherwise.
var DefaultAgingExchanges = []exchange.Exchange{exchange.ExchangeSHFE, exchange.ExchangeINE}

// GatewaySetting is one configured gateway instance.
type GatewaySetting struct {
	Name     string            `yaml:"name"`
	Class    string            `yaml:"gateway"`
	Settings map[string]string `yaml:"settings"`
}

// GatewayFile represents the top-level YAML structure.
//
// AgingExchanges is nil when the key is absent; an explicit empty list turns
// close splitting off.
type GatewayFile struct {
	SubscribeGateway string           `yaml:"subscribe_gateway"`
	AgingExchanges   *[]string        `yaml:"aging_exchanges"`
	Gateways         []GatewaySetting `yaml:"gateways"`
}

// LoadGateways reads the gateway file at path. Encrypted setting values are
// decrypted with km; km may be nil when the file holds no encrypted values.
func LoadGateways(path string, km *crypto.KeyManager) (*GatewayFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGateways(data, km)
}

// ParseGateways is LoadGateways for in-memory YAML.
func ParseGateways(data []byte, km *crypto.KeyManager) (*GatewayFile, error) {
	var file GatewayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse gateway file: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}

	for i := range file.Gateways {
		gs := &file.Gateways[i]
		if gs.Settings == nil {
			gs.Settings = map[string]string{}
		}
		if km == nil {
			for k, v := range gs.Settings {
				if crypto.IsEncrypted(v) {
					return nil, fmt.Errorf("gateway %s setting %q: %w", gs.Name, k, ErrEncryptedWithoutKey)
				}
			}
			continue
		}
		plain, err := km.DecryptSettings(gs.Settings)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: %w", gs.Name, err)
		}
		gs.Settings = plain
	}
	return &file, nil
}

func (f *GatewayFile) validate() error {
	seen := make(map[string]bool, len(f.Gateways))
	for i, g := range f.Gateways {
		if g.Name == "" {
			return fmt.Errorf("gateway #%d: name is required", i+1)
		}
		if g.Class == "" {
			return fmt.Errorf("gateway %s: gateway class is required", g.Name)
		}
		if seen[g.Name] {
			return fmt.Errorf("gateway %s: duplicate name", g.Name)
		}
		seen[g.Name] = true
	}
	if f.SubscribeGateway != "" && !seen[f.SubscribeGateway] {
		return fmt.Errorf("subscribe_gateway %s is not configured", f.SubscribeGateway)
	}
	if f.AgingExchanges != nil {
		if _, err := ParseExchanges(*f.AgingExchanges); err != nil {
			return fmt.Errorf("aging_exchanges: %w", err)
		}
	}
	return nil
}

// Subscriber returns the gateway market data subscriptions go through: the
// configured one, else the first gateway in file order.
func (f *GatewayFile) Subscriber() string {
	if f.SubscribeGateway != "" {
		return f.SubscribeGateway
	}
	if len(f.Gateways) > 0 {
		return f.Gateways[0].Name
	}
	return ""
}

// Aging resolves the aging exchange set. override (from AGING_EXCHANGES) wins
// over the file, the file over DefaultAgingExchanges. A nil pointer means
// unset; a set but empty list yields an empty, non-nil set.
func (f *GatewayFile) Aging(override *[]string) ([]exchange.Exchange, error) {
	src := override
	if src == nil {
		src = f.AgingExchanges
	}
	if src == nil {
		return append([]exchange.Exchange(nil), DefaultAgingExchanges...), nil
	}
	return ParseExchanges(*src)
}

// ParseExchanges maps venue codes to exchanges, rejecting unknown ones.
func ParseExchanges(names []string) ([]exchange.Exchange, error) {
	out := make([]exchange.Exchange, 0, len(names))
	for _, name := range names {
		ex, ok := exchange.ParseExchange(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, name)
		}
		out = append(out, ex)
	}
	return out, nil
}
