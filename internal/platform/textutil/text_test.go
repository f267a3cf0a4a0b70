package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	cases := map[string]string{
		"  hello  ":       "hello",
		"line\nbreak\x00": "line\nbreak",
		"caf\u00e9":       "caf\u00e9",
		"cafe\u0301":      "caf\u00e9",
		"":                "",
		"\t tabbed\t":     "tabbed",
	}
	for input, want := range cases {
		if got := NormalizeText(input); got != want {
			t.Errorf("NormalizeText(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPlainTextStripsMarkup(t *testing.T) {
	got := PlainText(`<script>alert(1)</script>Leave at <b>front</b> door &amp; ring`)
	want := "Leave at front door & ring"
	if got != want {
		t.Fatalf("PlainText = %q, want %q", got, want)
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Oil Painting ", "oil painting", "ＡＢＳＴＲＡＣＴ", "", "  "})
	want := []string{"oil-painting", "abstract"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %#v, want %#v", got, want)
	}
	if NormalizeTags(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("Sunset Over The Bay", "over the") {
		t.Fatal("expected case-insensitive match")
	}
	if ContainsFold("Sunset", "dawn") {
		t.Fatal("unexpected match")
	}
	if !ContainsFold("anything", "") {
		t.Fatal("empty needle should match")
	}
}

func TestRuneLen(t *testing.T) {
	if got := RuneLen("日本語"); got != 3 {
		t.Fatalf("RuneLen = %d, want 3", got)
	}
}
