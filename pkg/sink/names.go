package sink

import (
	"fmt"
	"strings"
)

// CleanName returns name if it is usable as a single path element.
func CleanName(name string) (string, error) {
	switch name {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return name, nil
}
