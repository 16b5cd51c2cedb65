package analyzer

import "testing"

func TestFlattenNestedObjects(t *testing.T) {
	source := map[string]interface{}{
		"title": "hello",
		"meta": map[string]interface{}{
			"author": "ada",
			"views":  float64(12),
		},
	}
	fields := Flatten(source)
	got := map[string]string{}
	for _, f := range fields {
		got[f.Path] = f.Text
	}
	if got["title"] != "hello" || got["meta.author"] != "ada" || got["meta.views"] != "12" {
		t.Fatalf("unexpected flatten result: %+v", got)
	}
}

func TestFlattenArrayGapBetweenElements(t *testing.T) {
	source := map[string]interface{}{
		"tags": []interface{}{"red", "blue"},
	}
	fields := Flatten(source)
	if len(fields) != 2 {
		t.Fatalf("expected 2 field values, got %+v", fields)
	}
	if fields[0].GapBefore != 0 || fields[1].GapBefore != 1 {
		t.Fatalf("expected gap 0 then 1, got %+v", fields)
	}
}

func TestFlattenNilContributesNothing(t *testing.T) {
	fields := Flatten(map[string]interface{}{"a": nil, "b": "x"})
	if len(fields) != 1 || fields[0].Path != "b" {
		t.Fatalf("expected only field b, got %+v", fields)
	}
}

func TestNormalizeScalar(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{true, "true"},
		{false, "false"},
		{float64(7), "7"},
		{3.5, "3.5"},
		{int(9), "9"},
	}
	for _, c := range cases {
		if got := NormalizeScalar(c.in); got != c.want {
			t.Fatalf("NormalizeScalar(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
