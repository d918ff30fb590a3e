package game

import (
	"reflect"
	"testing"
)

func contributor(seat, contributed int, status Status) *Participant {
	return &Participant{
		Seat:        seat,
		Contributed: contributed,
		Status:      status,
	}
}

func TestComputePots_NoAllIns(t *testing.T) {
	// Everyone bet the same amount: one pot, everyone eligible.
	participants := []*Participant{
		contributor(0, 100, StatusActive),
		contributor(1, 100, StatusActive),
		contributor(2, 100, StatusActive),
	}

	pots := ComputePots(participants)
	if len(pots) != 1 {
		t.Fatalf("expected 1 pot, got %d", len(pots))
	}
	if pots[0].Amount != 300 {
		t.Errorf("expected pot of 300, got %d", pots[0].Amount)
	}
	if len(pots[0].Eligible) != 3 {
		t.Errorf("expected 3 eligible seats, got %d", len(pots[0].Eligible))
	}
}

func TestComputePots_OneAllIn(t *testing.T) {
	// Seat 0 all-in for 50, two callers at 100.
	participants := []*Participant{
		contributor(0, 50, StatusAllIn),
		contributor(1, 100, StatusActive),
		contributor(2, 100, StatusActive),
	}

	pots := ComputePots(participants)
	if len(pots) != 2 {
		t.Fatalf("expected 2 pots, got %d", len(pots))
	}

	if pots[0].Amount != 150 {
		t.Errorf("main pot: expected 150, got %d", pots[0].Amount)
	}
	if !reflect.DeepEqual(pots[0].Eligible, []int{0, 1, 2}) {
		t.Errorf("main pot eligibility: got %v", pots[0].Eligible)
	}

	if pots[1].Amount != 100 {
		t.Errorf("side pot: expected 100, got %d", pots[1].Amount)
	}
	if !reflect.DeepEqual(pots[1].Eligible, []int{1, 2}) {
		t.Errorf("side pot eligibility: got %v", pots[1].Eligible)
	}
}

func TestComputePots_TwoAllInsThreeTiers(t *testing.T) {
	// All-ins at 50 and 100 below three full 200 contributions give three
	// tiers: 50x5=250, 50x4=200, 100x3=300.
	participants := []*Participant{
		contributor(0, 100, StatusAllIn),
		contributor(1, 50, StatusAllIn),
		contributor(2, 200, StatusAllIn),
		contributor(3, 200, StatusActive),
		contributor(4, 200, StatusActive),
	}

	pots := ComputePots(participants)
	if len(pots) != 3 {
		t.Fatalf("expected 3 pots, got %d", len(pots))
	}

	wantAmounts := []int{250, 200, 300}
	wantEligible := [][]int{{0, 1, 2, 3, 4}, {0, 2, 3, 4}, {2, 3, 4}}
	for i, pot := range pots {
		if pot.Amount != wantAmounts[i] {
			t.Errorf("pot %d: expected amount %d, got %d", i, wantAmounts[i], pot.Amount)
		}
		if !reflect.DeepEqual(pot.Eligible, wantEligible[i]) {
			t.Errorf("pot %d: expected eligible %v, got %v", i, wantEligible[i], pot.Eligible)
		}
	}
	if PotTotal(pots) != 750 {
		t.Errorf("expected pot total 750, got %d", PotTotal(pots))
	}
}

func TestComputePots_AllInCallCreatesNoSidePot(t *testing.T) {
	// An all-in that exactly matches the outstanding bet opens no tier.
	participants := []*Participant{
		contributor(0, 100, StatusAllIn),
		contributor(1, 100, StatusActive),
	}

	pots := ComputePots(participants)
	if len(pots) != 1 {
		t.Fatalf("expected 1 pot, got %d", len(pots))
	}
	if pots[0].Amount != 200 {
		t.Errorf("expected pot of 200, got %d", pots[0].Amount)
	}
}

func TestComputePots_FoldedExcessStaysWinnable(t *testing.T) {
	// A folded player wagered more than any live stack. Their excess must not
	// strand: it lands in the top pot with live eligibility.
	participants := []*Participant{
		contributor(0, 100, StatusFolded),
		contributor(1, 60, StatusAllIn),
		contributor(2, 60, StatusActive),
	}

	pots := ComputePots(participants)
	total := PotTotal(pots)
	if total != 220 {
		t.Fatalf("expected all 220 contributed chips in pots, got %d", total)
	}
	for i, pot := range pots {
		if len(pot.Eligible) == 0 {
			t.Errorf("pot %d has no eligible seats", i)
		}
		for _, seat := range pot.Eligible {
			if seat == 0 {
				t.Errorf("pot %d: folded seat 0 must not be eligible", i)
			}
		}
	}
}

func TestComputePots_FoldedContributionsIncluded(t *testing.T) {
	participants := []*Participant{
		contributor(0, 40, StatusFolded),
		contributor(1, 100, StatusActive),
		contributor(2, 100, StatusActive),
	}

	pots := ComputePots(participants)
	if len(pots) != 1 {
		t.Fatalf("expected 1 pot, got %d", len(pots))
	}
	if pots[0].Amount != 240 {
		t.Errorf("expected pot of 240, got %d", pots[0].Amount)
	}
	if !reflect.DeepEqual(pots[0].Eligible, []int{1, 2}) {
		t.Errorf("expected eligible seats [1 2], got %v", pots[0].Eligible)
	}
}

func TestSplitShares_Even(t *testing.T) {
	shares := splitShares(300, []int{0, 2}, 1, 4)
	if shares[0] != 150 || shares[2] != 150 {
		t.Errorf("expected 150 each, got %v", shares)
	}
}

func TestSplitShares_OddChipClockwiseFromButton(t *testing.T) {
	// Button at seat 2: clockwise order from the button is 3, 0, 1, 2. The
	// odd chip goes to seat 3.
	shares := splitShares(301, []int{1, 3}, 2, 4)
	if shares[3] != 151 {
		t.Errorf("expected seat 3 to get the odd chip, got %v", shares)
	}
	if shares[1] != 150 {
		t.Errorf("expected seat 1 to get 150, got %v", shares)
	}
}

func TestSplitShares_TwoOddChips(t *testing.T) {
	shares := splitShares(302, []int{0, 1, 2}, 0, 3)
	// Clockwise from seat 0: 1, 2, 0. Seats 1 and 2 get the extra chips.
	if shares[1] != 101 || shares[2] != 101 || shares[0] != 100 {
		t.Errorf("unexpected shares %v", shares)
	}
	total := shares[0] + shares[1] + shares[2]
	if total != 302 {
		t.Errorf("shares must sum to the pot, got %d", total)
	}
}
