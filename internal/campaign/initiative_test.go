package campaign

import (
	"encoding/json"
	"testing"
)

func TestInitiativeJSONRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		init Initiative
		json string
	}{
		{"unrolled", Unrolled, "null"},
		{"zero", Rolled(0), "0"},
		{"negative", Rolled(-2), "-2"},
		{"high", Rolled(23), "23"},
	}
	for _, tc := range cases {
		data, err := json.Marshal(tc.init)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.name, err)
		}
		if string(data) != tc.json {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.json, data)
		}
		var back Initiative
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if back != tc.init {
			t.Fatalf("%s: round trip changed %+v to %+v", tc.name, tc.init, back)
		}
	}
}

func TestUnrolledAndZeroAreDistinct(t *testing.T) {
	if Rolled(0) == Unrolled {
		t.Fatalf("a rolled zero must not equal an unrolled initiative")
	}
	if !Rolled(0).Rolled {
		t.Fatalf("Rolled(0) lost its rolled flag")
	}
}

func TestParseInitiative(t *testing.T) {
	cases := []struct {
		in   string
		want Initiative
	}{
		{"", Unrolled},
		{"  ", Unrolled},
		{"garbage", Unrolled},
		{"0", Rolled(0)},
		{"17", Rolled(17)},
		{"-3", Rolled(-3)},
	}
	for _, tc := range cases {
		if got := ParseInitiative(tc.in); got != tc.want {
			t.Fatalf("ParseInitiative(%q): expected %+v, got %+v", tc.in, tc.want, got)
		}
	}
}

func TestInitiativeString(t *testing.T) {
	if got := Unrolled.String(); got != "?" {
		t.Fatalf("expected ? for unrolled, got %s", got)
	}
	if got := Rolled(12).String(); got != "12" {
		t.Fatalf("expected 12, got %s", got)
	}
}
