package keywords

import (
	"reflect"
	"testing"
)

func TestUnique_PreservesFirstOccurrenceOrder(t *testing.T) {
	in := []string{"b", "a", "b", "c", "a", "d"}
	got := Unique(in)
	want := []string{"b", "a", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unique(%v) = %v, want %v", in, got, want)
	}
}

func TestUnique_DropsBlank(t *testing.T) {
	got := Unique([]string{"", "  ", "x", " x "})
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("expected [x], got %v", got)
	}
}

func TestDefault_HasDuplicates(t *testing.T) {
	all := Default()
	uniq := Unique(all)
	if len(uniq) >= len(all) {
		t.Fatalf("expected built-in list to contain repeats: %d unique of %d", len(uniq), len(all))
	}
	if uniq[0] != "업적" {
		t.Errorf("expected first keyword 업적, got %s", uniq[0])
	}
	if uniq[len(uniq)-1] != "전략" {
		t.Errorf("expected last keyword 전략, got %s", uniq[len(uniq)-1])
	}
}

func TestDefault_ReturnsCopy(t *testing.T) {
	a := Default()
	a[0] = "changed"
	if Default()[0] == "changed" {
		t.Error("Default should return a copy")
	}
}
