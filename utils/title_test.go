package utils

import "testing"

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dune", "dune"},
		{"Dune (2021)", "dune"},
		{"Dune(2021) ", "dune"},
		{"Blade Runner 2049", "bladerunner2049"},
		{"Spider-Man: No Way Home", "spidermannowayhome"},
		{"Amélie", "amelie"},
		{"Pokémon: The First Movie (1998)", "pokemonthefirstmovie"},
		{"1917", "1917"},
		{"(500) Days of Summer", "500daysofsummer"},
		{"  ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTitleKeepsInnerYear(t *testing.T) {
	// only a trailing parenthetical year is stripped
	if got := NormalizeTitle("Space: 1999 (1975)"); got != "space1999" {
		t.Fatalf("got %q", got)
	}
}

func TestTitleYearKey(t *testing.T) {
	if got := TitleYearKey("Dune (2021)", 2021); got != "dune:2021" {
		t.Fatalf("got %q", got)
	}
	if got := TitleYearKey("Dune", 0); got != "dune:" {
		t.Fatalf("got %q", got)
	}
}
