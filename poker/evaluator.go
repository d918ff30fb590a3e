package poker

import (
	"math/bits"
)

// HandRank represents the strength of a poker hand. Higher values are stronger.
// The high 4 bits carry the hand category, the remaining bits break ties within
// the category. Suit never contributes to ordering, only to flush detection.
type HandRank uint32

const (
	HighCard HandRank = iota << 28
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

const categoryMask = 0xF0000000

// Type returns the category of the hand (pair, flush, etc.).
func (hr HandRank) Type() HandRank {
	return hr & categoryMask
}

// IsRoyalFlush reports whether the rank is an ace-high straight flush.
func (hr HandRank) IsRoyalFlush() bool {
	return hr.Type() == StraightFlush && uint8(hr&0xF) == Ace
}

// String returns a human-readable hand description.
func (hr HandRank) String() string {
	switch hr.Type() {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		if hr.IsRoyalFlush() {
			return "Royal Flush"
		}
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// Evaluate ranks the best 5-card combination from a hand of 5 to 7 cards.
// Returns 0 for hands outside that size range. Pure and deterministic.
func Evaluate(hand Hand) HandRank {
	n := hand.CountCards()
	if n < 5 || n > 7 {
		return 0
	}
	return evaluateUnchecked(hand)
}

// Evaluate7Cards ranks the best 5-card hand from exactly 7 cards.
func Evaluate7Cards(hand Hand) HandRank {
	if hand.CountCards() != 7 {
		return 0
	}
	return evaluateUnchecked(hand)
}

// CompareHands returns 1 if a wins, -1 if b wins, 0 for a tie.
func CompareHands(a, b HandRank) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func evaluateUnchecked(hand Hand) HandRank {
	// Flush first: at most one suit can hold five of up to seven cards.
	for suit := uint8(0); suit < 4; suit++ {
		suitMask := hand.SuitMask(suit)
		if bits.OnesCount16(suitMask) < 5 {
			continue
		}
		if high := straightHigh(suitMask); high > 0 {
			return StraightFlush | HandRank(high)
		}
		return Flush | HandRank(topRanks(suitMask, 5))
	}

	counts := countRanks(hand)
	rankMask := hand.RankMask()

	if quad := highestWithCount(counts, 4); quad >= 0 {
		kicker := topRanks(rankMask&^(1<<quad), 1)
		return FourOfAKind | HandRank(quad)<<4 | HandRank(bits.Len16(kicker)-1)
	}

	trips := highestWithCount(counts, 3)
	if trips >= 0 {
		// The pair may itself be a second set of trips when seven cards
		// hold two three-of-a-kinds.
		if pair := highestPairExcept(counts, uint8(trips)); pair >= 0 {
			return FullHouse | HandRank(trips)<<4 | HandRank(pair)
		}
	}

	if high := straightHigh(rankMask); high > 0 {
		return Straight | HandRank(high)
	}

	if trips >= 0 {
		kickers := topRanks(rankMask&^(1<<trips), 2)
		return ThreeOfAKind | HandRank(trips)<<13 | HandRank(kickers)
	}

	if high := highestWithCount(counts, 2); high >= 0 {
		if low := highestPairExcept(counts, uint8(high)); low >= 0 {
			used := uint16(1)<<high | uint16(1)<<low
			kicker := topRanks(rankMask&^used, 1)
			return TwoPair | HandRank(high)<<8 | HandRank(low)<<4 | HandRank(bits.Len16(kicker)-1)
		}
		kickers := topRanks(rankMask&^(1<<high), 3)
		return Pair | HandRank(high)<<13 | HandRank(kickers)
	}

	return HighCard | HandRank(topRanks(rankMask, 5))
}

// countRanks counts how many of each rank the hand holds.
func countRanks(hand Hand) [13]uint8 {
	var counts [13]uint8
	for suit := uint8(0); suit < 4; suit++ {
		suitMask := hand.SuitMask(suit)
		for suitMask != 0 {
			r := bits.TrailingZeros16(suitMask)
			counts[r]++
			suitMask &^= 1 << r
		}
	}
	return counts
}

// highestWithCount returns the highest rank held exactly n times, or -1.
func highestWithCount(counts [13]uint8, n uint8) int {
	for rank := 12; rank >= 0; rank-- {
		if counts[rank] == n {
			return rank
		}
	}
	return -1
}

// highestPairExcept returns the highest rank other than except held at least
// twice, or -1.
func highestPairExcept(counts [13]uint8, except uint8) int {
	for rank := 12; rank >= 0; rank-- {
		if uint8(rank) != except && counts[rank] >= 2 {
			return rank
		}
	}
	return -1
}

// straightHigh returns the high-card rank of the best straight in the rank
// mask, or 0 when there is none. The wheel (A-2-3-4-5) reports Five.
func straightHigh(rankMask uint16) uint8 {
	for high := Ace; high >= Six; high-- {
		run := uint16(0x1F) << (high - 4)
		if rankMask&run == run {
			return high
		}
	}
	// Ace plays low in the wheel.
	const wheel = 1<<Ace | 1<<Five | 1<<Four | 1<<Three | 1<<Two
	if rankMask&wheel == wheel {
		return Five
	}
	return 0
}

// topRanks returns a mask of the top n ranks present in the mask.
func topRanks(rankMask uint16, n int) uint16 {
	var result uint16
	for found := 0; found < n && rankMask != 0; found++ {
		top := uint16(1) << (bits.Len16(rankMask) - 1)
		result |= top
		rankMask &^= top
	}
	return result
}
