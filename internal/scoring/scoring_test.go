package scoring

import "testing"

func TestScoreTiers(t *testing.T) {
	cases := []struct {
		name    string
		correct bool
		ms      int
		want    int
	}{
		{"instant", true, 0, 15},
		{"fast", true, 2000, 15},
		{"fast boundary", true, 3000, 15},
		{"just past fast", true, 3001, 13},
		{"quick", true, 4000, 13},
		{"quick boundary", true, 5000, 13},
		{"just past quick", true, 5001, 10},
		{"slow", true, 14999, 10},
		{"beyond window", true, 60000, 10},
		{"wrong fast", false, 100, 0},
		{"wrong slow", false, 12000, 0},
	}
	for _, tc := range cases {
		if got := Score(tc.correct, tc.ms); got != tc.want {
			t.Fatalf("%s: Score(%v, %d) = %d, want %d", tc.name, tc.correct, tc.ms, got, tc.want)
		}
	}
}

func TestScoreIsDeterministicAcrossRanges(t *testing.T) {
	for ms := 0; ms <= 20000; ms += 250 {
		want := 10
		switch {
		case ms <= 3000:
			want = 15
		case ms <= 5000:
			want = 13
		}
		if got := Score(true, ms); got != want {
			t.Fatalf("Score(true, %d) = %d, want %d", ms, got, want)
		}
		if got := Score(false, ms); got != 0 {
			t.Fatalf("Score(false, %d) = %d, want 0", ms, got)
		}
	}
}

func TestTierNames(t *testing.T) {
	if TierFor(3000).String() != "fast" || TierFor(5000).String() != "quick" || TierFor(5001).String() != "slow" {
		t.Fatalf("unexpected tier names")
	}
}
