package domain

// Strategy selects how a creation event reaches readers.
type Strategy int

const (
	// StrategyPush pre-stages content at write time: the item is cached
	// and materializers fan it out to follower feeds.
	StrategyPush Strategy = iota
	// StrategyPull defers the cost to read time; high-fanout authors
	// would otherwise amplify every write unboundedly.
	StrategyPull
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyPush:
		return "push"
	case StrategyPull:
		return "pull"
	default:
		return "unknown"
	}
}

// DefaultFanoutThreshold is the reference follower-count cutoff between
// push and pull fanout.
const DefaultFanoutThreshold = 10

// Decide selects the fanout strategy for an author with the given
// follower count. Pure and deterministic: push iff followerCount is
// strictly below the threshold.
func Decide(followerCount, threshold int) Strategy {
	if followerCount < threshold {
		return StrategyPush
	}
	return StrategyPull
}
