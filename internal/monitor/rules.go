package monitor

import (
	"multiaccount-trade/internal/events"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Rule decides whether a log record raises an alert.
type Rule func(events.Log) bool

// MinSeverity matches records at or above level.
func MinSeverity(level exchange.Severity) Rule {
	return func(l events.Log) bool { return l.Level >= level }
}

// AnyRule matches when at least one rule does.
func AnyRule(rules ...Rule) Rule {
	return func(l events.Log) bool {
		for _, r := range rules {
			if r(l) {
				return true
			}
		}
		return false
	}
}
