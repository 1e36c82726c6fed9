package domain

// Venue identifies the on-chain program that implemented a swap.
type Venue string

const (
	VenueUnknown Venue = ""
	VenuePump    Venue = "pump"
	VenueRaydium Venue = "raydium"
	VenueOrca    Venue = "orca"
	VenueJupiter Venue = "jupiter"
)

// NativeMint is the wrapped-SOL mint address; native lamport balances are
// folded into the same decimal space as this mint before deltas are taken.
const NativeMint = "So11111111111111111111111111111111111111112"

const NativeDecimals = 9

// venuePriority orders known program ids from most to least specific, so
// the first match in account_keys/program_ids_touched wins as venue_hint.
// Ids are the well-known mainnet program addresses for each venue.
var venuePriority = []struct {
	programID string
	venue     Venue
}{
	{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P", VenuePump},       // pump.fun bonding curve
	{"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8", VenueRaydium},   // Raydium AMM v4
	{"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaK8dXzgQpp5", VenueRaydium},    // Raydium CLMM
	{"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc", VenueOrca},       // Orca Whirlpools
	{"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", VenueJupiter},    // Jupiter aggregator v6
}

// VenueForProgramIDs returns the highest-priority known venue among the
// touched program ids, or VenueUnknown if none match.
func VenueForProgramIDs(touched []string) Venue {
	set := make(map[string]struct{}, len(touched))
	for _, id := range touched {
		set[id] = struct{}{}
	}
	for _, candidate := range venuePriority {
		if _, ok := set[candidate.programID]; ok {
			return candidate.venue
		}
	}
	return VenueUnknown
}
