package validation

import "regexp"

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// IsISINFormat reports whether s is two uppercase letters, nine uppercase
// alphanumerics and a trailing digit.
func IsISINFormat(s string) bool {
	return isinPattern.MatchString(s)
}

// IsISINChecksum validates the ISIN check digit. Letters expand to their
// alphabet position plus 10 (A=10 .. Z=35) and the resulting digit string is
// run through Luhn from the rightmost digit. Only meaningful for strings that
// already pass IsISINFormat.
func IsISINChecksum(s string) bool {
	digits := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
			digits = append(digits, ch-'0')
		case ch >= 'A' && ch <= 'Z':
			v := ch - 'A' + 10
			digits = append(digits, v/10, v%10)
		default:
			return false
		}
	}
	return luhn(digits)
}

func luhn(digits []byte) bool {
	sum := 0
	for i := 0; i < len(digits); i++ {
		n := int(digits[len(digits)-1-i])
		if i%2 == 1 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
	}
	return sum%10 == 0
}
