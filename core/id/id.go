// Package id defines the opaque, role-typed string identifiers used
// throughout the backtester. Each is a distinct Go type so the compiler
// catches mixing (e.g. passing a StrategyID where a ClientOrderID is
// expected), even though all are thin string wrappers underneath.
package id

import "fmt"

type (
	TraderID      string
	StrategyID    string
	ActorID       string
	Venue         string
	ClientOrderID string
	VenueOrderID  string
	TradeID       string
	PositionID    string
	AccountID     string
	OrderListID   string
	ClientID      string
	ComponentID   string
)

// InstrumentID is the composite "{symbol}.{venue}" identifier.
type InstrumentID struct {
	Symbol string
	Venue  Venue
}

// NewInstrumentID builds an InstrumentID from its parts.
func NewInstrumentID(symbol string, venue Venue) InstrumentID {
	return InstrumentID{Symbol: symbol, Venue: venue}
}

func (i InstrumentID) String() string {
	return fmt.Sprintf("%s.%s", i.Symbol, i.Venue)
}

// AccountIDFor derives an AccountID from a venue, matching the
// "{venue}-{number}" convention used by the simulated exchange.
func AccountIDFor(venue Venue, n int) AccountID {
	return AccountID(fmt.Sprintf("%s-%03d", venue, n))
}
