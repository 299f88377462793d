package inventory

import (
	"slices"
	"strings"
)

// Zones are the storage locations of the kitchen, in map order. Location
// names in the backing store are the zone IDs.
var Zones = []string{
	"A1", "B1", "D1", "F1", "G1", "I1", "J1", "L1", "N1",
	"A2", "B2", "D2", "J2", "L2", "N2",
	"A3", "D3", "E3", "F2", "F3", "F4", "H2", "H3", "J3", "K3", "N3",
	"D4", "J4",
}

// zoneAliases maps the second cabinet of a grouped pair onto the first,
// which holds the items for both.
var zoneAliases = map[string]string{
	"C1": "B1",
	"C2": "B2",
	"E1": "D1",
	"E2": "D2",
	"E4": "D4",
	"H1": "G1",
	"K1": "J1",
	"K2": "J2",
	"K4": "J4",
	"M1": "L1",
	"M2": "L2",
}

// CanonicalZone upper-cases zone and follows the grouped-cabinet alias. ok
// is false for anything that is not a known zone.
func CanonicalZone(zone string) (canonical string, ok bool) {
	z := strings.ToUpper(strings.TrimSpace(zone))
	if target, aliased := zoneAliases[z]; aliased {
		z = target
	}
	if !slices.Contains(Zones, z) {
		return "", false
	}
	return z, true
}

// ValidZonesHint lists the zones a user may name.
func ValidZonesHint() string {
	return "Valid zones: " + strings.Join(sortedZones(), ", ")
}

// GroupedZonesHint describes the alias pairs, e.g. "C1→B1, C2→B2".
func GroupedZonesHint() string {
	aliases := make([]string, 0, len(zoneAliases))
	for alias := range zoneAliases {
		aliases = append(aliases, alias)
	}
	slices.Sort(aliases)
	parts := make([]string, len(aliases))
	for i, alias := range aliases {
		parts[i] = alias + "→" + zoneAliases[alias]
	}
	return strings.Join(parts, ", ")
}

func sortedZones() []string {
	zones := slices.Clone(Zones)
	slices.Sort(zones)
	return zones
}
