package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"
	"gopkg.in/yaml.v3"
)

// Rational is a frame rate or time base as written in configuration files
// and on the command line: "30000/1001" or "25".
type Rational struct {
	Num int
	Den int
}

func (r Rational) IsZero() bool {
	return r.Num == 0 && r.Den == 0
}

func (r Rational) Reverse() Rational {
	return Rational{
		Num: r.Den,
		Den: r.Num,
	}
}

func (r Rational) Astiav() astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func RationalFromAstiav(r astiav.Rational) Rational {
	return Rational{
		Num: r.Num(),
		Den: r.Den(),
	}
}

func RationalFromString(s string) (*Rational, error) {
	var r Rational
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 0:
		return nil, fmt.Errorf("unable to parse Rational from empty string")
	case strings.Contains(s, "/"):
		num, den, _ := strings.Cut(s, "/")
		var err error
		if r.Num, err = strconv.Atoi(strings.TrimSpace(num)); err != nil {
			return nil, fmt.Errorf("unable to parse the numerator of %q: %w", s, err)
		}
		if r.Den, err = strconv.Atoi(strings.TrimSpace(den)); err != nil {
			return nil, fmt.Errorf("unable to parse the denominator of %q: %w", s, err)
		}
	default:
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
		r = Rational{Num: v, Den: 1}
	}
	if r.Den == 0 {
		return nil, fmt.Errorf("denominator cannot be zero")
	}
	return &r, nil
}

func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Set implements pflag.Value.
func (r *Rational) Set(s string) error {
	v, err := RationalFromString(s)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

// Type implements pflag.Value.
func (r *Rational) Type() string {
	return "rational"
}

func (r Rational) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rational) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unable to unmarshal Rational from JSON '%s': %w", b, err)
	}
	return r.Set(s)
}

func (r *Rational) UnmarshalYAML(value *yaml.Node) error {
	if err := r.Set(value.Value); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}

func (r Rational) MarshalYAML() (any, error) {
	return r.String(), nil
}
