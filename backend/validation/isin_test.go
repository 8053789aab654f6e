package validation

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsISINFormat(t *testing.T) {
	valid := []string{"XS3184638594", "US0378331005", "GB00B03MLX29"}
	for _, s := range valid {
		assert.True(t, IsISINFormat(s), s)
	}

	invalid := map[string]string{
		"empty":         "",
		"lowercase":     "xs3184638594",
		"ten chars":     "XS31846385",
		"leading digit": "1S3184638594",
		"thirteen":      "XS31846385941",
		"trailing char": "XS318463859A",
	}
	for name, s := range invalid {
		assert.False(t, IsISINFormat(s), name)
	}
}

func TestIsISINChecksumKnownValues(t *testing.T) {
	assert.True(t, IsISINChecksum("XS3184638594"))
	assert.True(t, IsISINChecksum("US0378331005"))
	assert.True(t, IsISINChecksum("GB00B03MLX29"))
	assert.False(t, IsISINChecksum("XS3184638595"))
	assert.False(t, IsISINChecksum("US0378331006"))
}

// Exactly one check digit out of ten satisfies Luhn for any body.
func TestIsISINChecksumSingleValidCheckDigit(t *testing.T) {
	bodies := []string{"XS318463859", "US037833100", "DE000BAY001", "FR0000ABC12"}
	for _, body := range bodies {
		passing := 0
		for d := 0; d <= 9; d++ {
			if IsISINChecksum(body + strconv.Itoa(d)) {
				passing++
			}
		}
		assert.Equal(t, 1, passing, body)
	}
}

func TestIsISINChecksumMatchesManualLuhn(t *testing.T) {
	// XS -> 33 28, then the numeric tail
	digits := "33283184638594"
	sum := 0
	for i := 0; i < len(digits); i++ {
		n := int(digits[len(digits)-1-i] - '0')
		if i%2 == 1 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
	}
	assert.Equal(t, sum%10 == 0, IsISINChecksum("XS3184638594"))
}
