package buildkit

import (
	"fmt"
	"strings"
)

// Configuration selects between debug and release builds. It is passed to
// every compile and link call.
type Configuration int

const (
	Debug Configuration = iota
	Release
)

func (c Configuration) String() string {
	switch c {
	case Debug:
		return "debug"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("Configuration(%d)", int(c))
	}
}

// ParseConfiguration accepts "debug" or "release", in any case.
func ParseConfiguration(s string) (Configuration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "release":
		return Release, nil
	}
	return 0, fmt.Errorf("%w: unknown configuration %q, expected debug or release", ErrConfiguration, s)
}

func (c Configuration) MarshalText() ([]byte, error) {
	if c != Debug && c != Release {
		return nil, fmt.Errorf("%w: invalid configuration %d", ErrConfiguration, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Configuration) UnmarshalText(text []byte) error {
	parsed, err := ParseConfiguration(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
