// Package access defines the ordered access-level hierarchy shared by
// user grants and resource requirements.
package access

// Level is one of a small closed set of role names.
type Level string

const (
	Public  Level = "public"
	Member  Level = "member"
	Premium Level = "premium"
	Admin   Level = "admin"
)

// ranks holds the strict total order public < member < premium < admin.
var ranks = map[Level]int{
	Public:  0,
	Member:  1,
	Premium: 2,
	Admin:   3,
}

// Rank returns the numeric position of a level in the hierarchy.
// Unrecognized levels rank as Public - the lowest rank, at every call
// site, so a bad or forged level string never grants anything.
func Rank(l Level) int {
	if r, ok := ranks[l]; ok {
		return r
	}
	return ranks[Public]
}

// Valid reports whether l is one of the closed vocabulary values.
func Valid(l Level) bool {
	_, ok := ranks[l]
	return ok
}

// HasAccess reports whether a user at userLevel may view a resource
// requiring requiredLevel.
func HasAccess(userLevel, requiredLevel Level) bool {
	return Rank(userLevel) >= Rank(requiredLevel)
}

// Levels returns the full vocabulary in ascending rank order.
func Levels() []Level {
	return []Level{Public, Member, Premium, Admin}
}
