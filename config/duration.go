package config

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Duration is just an alias for time.Duration that allows
// serialization to YAML as well as JSON.
type Duration struct {
	time.Duration
}

// ErrDurationMustBeString is returned when a non-string value is
// presented to be deserialized as a Duration
var ErrDurationMustBeString = errors.New("cannot unmarshal something other than a string into a Duration")

// UnmarshalJSON parses a string into a Duration using time.ParseDuration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := ""
	err := json.Unmarshal(b, &s)
	if err != nil {
		var jsonUnmarshalTypeErr *json.UnmarshalTypeError
		if errors.As(err, &jsonUnmarshalTypeErr) {
			return ErrDurationMustBeString
		}
		return err
	}
	dd, err := time.ParseDuration(s)
	d.Duration = dd
	return err
}

// MarshalJSON returns the string form of the duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// UnmarshalYAML uses the same format as JSON.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode || value.Tag == "!!int" || value.Tag == "!!float" {
		return ErrDurationMustBeString
	}

	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}

	d.Duration = dur
	return nil
}

// MarshalYAML returns the string form of the duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}
