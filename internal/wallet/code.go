package wallet

import (
	"crypto/rand"
	"strings"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codePrefix returns the redemption code prefix for t.
func codePrefix(t ItemType) string {
	switch t {
	case TypeDiscount:
		return "DSC"
	case TypeExperience:
		return "EXP"
	case TypeVault:
		return "VLT"
	default:
		return "REW"
	}
}

// CodeGenerator produces the random suffix of a redemption code.
type CodeGenerator func(n int) string

// RandomSuffix draws n uppercase alphanumerics from crypto/rand.
func RandomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	buf := make([]byte, 1)
	for b.Len() < n {
		// crypto/rand.Read never fails on supported platforms
		_, _ = rand.Read(buf)
		// 252 is the largest multiple of 36 below 256; rejecting above it keeps the draw uniform
		if buf[0] >= 252 {
			continue
		}
		b.WriteByte(codeAlphabet[int(buf[0])%len(codeAlphabet)])
	}
	return b.String()
}

// FormatCode joins a type prefix and suffix as "<PREFIX>-<SUFFIX>".
func FormatCode(t ItemType, suffix string) string {
	return codePrefix(t) + "-" + suffix
}
