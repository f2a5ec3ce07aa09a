package book

import "testing"

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"pair", "8936434268 9788936434267", "8936434268"},
		{"only_13", " 9788936434267", "9788936434267"},
		{"single", "9788936434267", "9788936434267"},
		{"empty", "", ""},
		{"blank", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeISBN(tt.raw); got != tt.want {
				t.Errorf("NormalizeISBN(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRecordID(t *testing.T) {
	r := Record{ISBN: "1111111111 9781111111111"}
	if r.ID() != "1111111111" {
		t.Errorf("expected first token, got %q", r.ID())
	}
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Add(OutcomeSuccess)
	tally.Add(OutcomeSuccess)
	tally.Add(OutcomeSkip)
	tally.Add(OutcomeTimeout)

	if tally.Success != 2 || tally.Skip != 1 || tally.Timeout != 1 {
		t.Errorf("unexpected tally: %+v", tally)
	}
	if tally.Total() != 4 {
		t.Errorf("expected total 4, got %d", tally.Total())
	}

	other := Tally{Success: 1, Timeout: 2}
	tally.Merge(other)
	if tally.Success != 3 || tally.Timeout != 3 {
		t.Errorf("merge failed: %+v", tally)
	}
}
