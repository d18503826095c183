package core

import "strings"

// CNPJLength is the number of digits in a normalised CNPJ.
const CNPJLength = 14

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// NormalizeCNPJ strips punctuation and left-pads with zeros to 14 digits.
// Inputs with more than 14 digits are returned unpadded.
func NormalizeCNPJ(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) < CNPJLength {
		digits = strings.Repeat("0", CNPJLength-len(digits)) + digits
	}
	return digits
}

// ValidCNPJ reports whether s is a 14-digit CNPJ with correct check digits.
// Repeated-digit sequences such as 00000000000000 are rejected.
func ValidCNPJ(s string) bool {
	if len(s) != CNPJLength || !isDigits(s) {
		return false
	}
	if strings.Count(s, s[:1]) == CNPJLength {
		return false
	}
	first := cnpjDigit(s[:12], cnpjFirstWeights)
	second := cnpjDigit(s[:12]+string(first), cnpjSecondWeights)
	return s[12] == first && s[13] == second
}

func cnpjDigit(base string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(base[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}
