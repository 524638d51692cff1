package utils

import "strings"

// The monitored ledger uses 32-byte account addresses, rendered as 0x-prefixed
// hex. Short forms with leading zeros stripped are accepted on the wire; the
// canonical form is lowercase and zero-padded to the full width so the same
// wallet observed through different sources lands on one ticket row.
const addressHexDigits = 64

// IsValidAddress reports whether a string is a well-formed ledger address.
func IsValidAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	digits := address[2:]
	if len(digits) == 0 || len(digits) > addressHexDigits {
		return false
	}
	return isHex(digits)
}

// NormalizeAddress converts an address to its canonical form: lowercase,
// 0x-prefixed, zero-padded to 64 hex digits. Values that are not well-formed
// addresses are returned unchanged.
func NormalizeAddress(address string) string {
	digits := strings.TrimPrefix(address, "0x")
	if len(digits) == 0 || len(digits) > addressHexDigits || !isHex(digits) {
		return address
	}
	if len(digits) < addressHexDigits {
		digits = strings.Repeat("0", addressHexDigits-len(digits)) + digits
	}
	return "0x" + strings.ToLower(digits)
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
