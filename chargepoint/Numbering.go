package chargepoint

import "github.com/pkg/errors"

// ErrUnknownConnector is returned when a connector address does not exist in the topology.
var ErrUnknownConnector = errors.New("unknown connector")

// ToFlat converts a 1-based (evse, connector) position into the protocol connector id.
// counts holds the number of connectors of every EVSE in order.
func ToFlat(counts []int, evse, connector int) (int, error) {
	if evse < 1 || evse > len(counts) || connector < 1 || connector > counts[evse-1] {
		return 0, errors.Wrapf(ErrUnknownConnector, "evse %d connector %d", evse, connector)
	}

	flat := connector
	for _, n := range counts[:evse-1] {
		flat += n
	}

	return flat, nil
}

// ToNested converts a protocol connector id into its 1-based (evse, connector) position.
// Ids outside 1..total are rejected.
func ToNested(counts []int, flat int) (int, int, error) {
	if flat < 1 {
		return 0, 0, errors.Wrapf(ErrUnknownConnector, "connector %d", flat)
	}

	cumulative := 0
	for i, n := range counts {
		if flat <= cumulative+n {
			return i + 1, flat - cumulative, nil
		}
		cumulative += n
	}

	return 0, 0, errors.Wrapf(ErrUnknownConnector, "connector %d exceeds %d connectors", flat, cumulative)
}
