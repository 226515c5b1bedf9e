package campaign

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Initiative is an explicit rolled/unrolled variant. The zero value is
// unrolled; a rolled zero is a real result and sorts above every unrolled
// combatant. JSON representation is null when unrolled, the bare integer
// otherwise, so stored documents keep the shape the tracker always used.
type Initiative struct {
	Value  int
	Rolled bool
}

func Rolled(v int) Initiative {
	return Initiative{Value: v, Rolled: true}
}

var Unrolled = Initiative{}

// ParseInitiative maps user input to an Initiative: blank and unparseable
// input both mean unrolled. "0" is a rolled zero, not unrolled.
func ParseInitiative(s string) Initiative {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unrolled
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return Unrolled
	}
	return Rolled(v)
}

func (i Initiative) MarshalJSON() ([]byte, error) {
	if !i.Rolled {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(i.Value)), nil
}

func (i *Initiative) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = Unrolled
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*i = Rolled(v)
	return nil
}

// String renders for display: "?" while unrolled.
func (i Initiative) String() string {
	if !i.Rolled {
		return "?"
	}
	return strconv.Itoa(i.Value)
}
