package moderation

// Tier is the punishment severity derived from the consecutive violation
// count. Escalation is monotonic; the only ways down are expiry and an
// explicit admin reset.
type Tier string

const (
	TierWarn Tier = "warn"
	TierKick Tier = "kick"
	TierBan  Tier = "ban"
)

func TierForCount(count int) Tier {
	switch {
	case count <= 1:
		return TierWarn
	case count == 2:
		return TierKick
	default:
		return TierBan
	}
}
