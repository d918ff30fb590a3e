package poker

// HoleCardCategory is a coarse preflop strength bucket for a pair of hole
// cards. Hand-history queries filter on it.
type HoleCardCategory string

const (
	CategoryPremium HoleCardCategory = "Premium"
	CategoryStrong  HoleCardCategory = "Strong"
	CategoryMedium  HoleCardCategory = "Medium"
	CategoryWeak    HoleCardCategory = "Weak"
	CategoryTrash   HoleCardCategory = "Trash"
	CategoryUnknown HoleCardCategory = "Unknown"
)

// CategorizeHoleCards buckets two hole cards.
// Premium (JJ+, AK), Strong (TT, AQ/AJ), Medium (77-99, suited broadway),
// Weak (small pairs, suited connectors and suited aces), Trash otherwise.
func CategorizeHoleCards(card1, card2 Card) HoleCardCategory {
	r1, r2 := card1.Rank(), card2.Rank()
	if r1 > 12 || r2 > 12 {
		return CategoryUnknown
	}

	// Work in 2-14 values with the higher rank second.
	small, big := int(r1)+2, int(r2)+2
	if small > big {
		small, big = big, small
	}
	suited := card1.Suit() == card2.Suit()
	isPair := small == big

	switch {
	case isPair && small >= 11: // JJ, QQ, KK, AA
		return CategoryPremium
	case big == 14 && small == 13: // AK
		return CategoryPremium
	case isPair && small == 10: // TT
		return CategoryStrong
	case big == 14 && (small == 12 || small == 11): // AQ, AJ
		return CategoryStrong
	case isPair && small >= 7: // 77-99
		return CategoryMedium
	case suited && small >= 11: // suited broadway
		return CategoryMedium
	case isPair: // 22-66
		return CategoryWeak
	case suited && big == 14: // suited aces
		return CategoryWeak
	case suited && big-small == 1 && small >= 4: // suited connectors 45s+
		return CategoryWeak
	default:
		return CategoryTrash
	}
}

// ParseHoleCardCategory validates a category name from a query string.
func ParseHoleCardCategory(s string) (HoleCardCategory, bool) {
	switch HoleCardCategory(s) {
	case CategoryPremium, CategoryStrong, CategoryMedium, CategoryWeak, CategoryTrash:
		return HoleCardCategory(s), true
	default:
		return CategoryUnknown, false
	}
}
