package naming

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain words", input: "Super Mario World", want: "super-mario-world"},
		{name: "punctuation dropped", input: "Zelda: A Link to the Past!", want: "zelda-a-link-to-the-past"},
		{name: "accents folded", input: "Pokémon Émeraude", want: "pokemon-emeraude"},
		{name: "repeated separators", input: "  Metroid -- Zero   Mission ", want: "metroid-zero-mission"},
		{name: "underscores kept", input: "mega_man 2", want: "mega_man-2"},
		{name: "cyrillic kept", input: "Тетрис", want: "тетрис"},
		{name: "ideographic space", input: "ロック\u3000マン", want: "ロック-マン"},
		{name: "only symbols", input: "?!*", want: "untitled"},
		{name: "empty", input: "", want: "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlugify_NonLatinTitlesStayDistinct(t *testing.T) {
	a := Slugify("ファイナルファンタジー")
	b := Slugify("ドラゴンクエスト")

	if a == fallbackSlug || b == fallbackSlug {
		t.Fatalf("non-Latin title fell back to %q: %q, %q", fallbackSlug, a, b)
	}
	if a == b {
		t.Fatalf("different titles share slug %q", a)
	}
}
