// Package weather provides the discrete weather states consumed by the
// negotiation engine, and an optional OpenWeatherMap client that maps real
// conditions onto them for the standalone simulator.
package weather

// Condition is a discrete weather state supplied by the host simulation.
type Condition uint8

const (
	Clear Condition = iota
	Cloudy
	Rain
	Snow
	Storm
	Hail
)

// Name returns a human-readable condition name.
func (c Condition) Name() string {
	switch c {
	case Clear:
		return "clear"
	case Cloudy:
		return "cloudy"
	case Rain:
		return "rain"
	case Snow:
		return "snow"
	case Storm:
		return "storm"
	case Hail:
		return "hail"
	default:
		return "unknown"
	}
}

// NegotiationModifier returns the acceptance-tolerance bump bad weather adds.
// Sellers of outdoor equipment get more eager when the sky turns on them.
func (c Condition) NegotiationModifier() float64 {
	switch c {
	case Hail:
		return 0.12
	case Storm:
		return 0.08
	case Rain, Snow:
		return 0.05
	default:
		return 0
	}
}

// Source supplies the current weather condition. Provided by the host; the
// engine looks it up once per submitted offer.
type Source interface {
	Current() Condition
}

// Static is a Source pinned to one condition. Used in tests and as the
// default when no live weather client is configured.
type Static Condition

// Current returns the pinned condition.
func (s Static) Current() Condition {
	return Condition(s)
}
