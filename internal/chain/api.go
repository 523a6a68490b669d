package chain

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidAddress = errors.New("invalid address")

var addrPattern = regexp.MustCompile(`^[a-z0-9_]{3,64}$`)

// AddrValidate accepts normalized principal names only; it never rewrites input.
func (c *Chain) AddrValidate(addr string) (string, error) {
	return ValidateAddress(addr)
}

func ValidateAddress(addr string) (string, error) {
	if !addrPattern.MatchString(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return addr, nil
}
