package game

import "sort"

// Pot is a main or side pot. Eligibility is restricted to non-folded
// participants who contributed at least the pot's tier.
type Pot struct {
	Amount int `json:"amount"`
	// Tier is the per-player contribution cap that closes this pot.
	Tier     int   `json:"tier"`
	Eligible []int `json:"eligible"`
}

// ComputePots partitions cumulative contributions into a main pot and side
// pots. Boundaries arise only from all-in contributions strictly below the
// largest wager; an all-in call at or above the outstanding bet creates none.
func ComputePots(participants []*Participant) []Pot {
	maxAll, maxLive := 0, 0
	for _, p := range participants {
		if p.Contributed > maxAll {
			maxAll = p.Contributed
		}
		if p.InHand() && p.Contributed > maxLive {
			maxLive = p.Contributed
		}
	}
	if maxAll == 0 {
		return nil
	}

	boundaries := make(map[int]bool)
	for _, p := range participants {
		if p.Status == StatusAllIn && p.Contributed > 0 && p.Contributed < maxAll {
			boundaries[p.Contributed] = true
		}
	}

	tiers := make([]int, 0, len(boundaries)+1)
	for b := range boundaries {
		tiers = append(tiers, b)
	}
	sort.Ints(tiers)
	tiers = append(tiers, maxAll)

	pots := make([]Pot, 0, len(tiers))
	prev := 0
	for _, tier := range tiers {
		pot := Pot{Tier: tier}
		for _, p := range participants {
			slice := min(p.Contributed, tier) - min(p.Contributed, prev)
			pot.Amount += slice
		}
		// Chips a folded player wagered beyond every live stack stay in
		// the pot, so eligibility for the top tier caps at the largest
		// live contribution.
		eligTier := min(tier, maxLive)
		for _, p := range participants {
			if p.InHand() && p.Contributed >= eligTier {
				pot.Eligible = append(pot.Eligible, p.Seat)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = tier
	}

	return pots
}

// PotTotal sums all pot amounts.
func PotTotal(pots []Pot) int {
	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

// splitShares divides a pot among winning seats. Ties split evenly; any odd
// remainder chips go one each to the first winners clockwise from the button.
func splitShares(amount int, winners []int, button, numSeats int) map[int]int {
	if len(winners) == 0 {
		return nil
	}

	ordered := make([]int, len(winners))
	copy(ordered, winners)
	sort.Slice(ordered, func(i, j int) bool {
		return clockwiseFrom(button, ordered[i], numSeats) < clockwiseFrom(button, ordered[j], numSeats)
	})

	shares := make(map[int]int, len(ordered))
	base := amount / len(ordered)
	rem := amount % len(ordered)
	for i, seat := range ordered {
		shares[seat] = base
		if i < rem {
			shares[seat]++
		}
	}
	return shares
}

// clockwiseFrom returns the distance from the seat after the button to s.
func clockwiseFrom(button, s, numSeats int) int {
	return (s - button - 1 + numSeats) % numSeats
}
