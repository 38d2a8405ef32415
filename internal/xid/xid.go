package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// inStorePrefix is the GS1 range reserved for codes assigned inside a store.
const inStorePrefix = "200"

// Barcode returns a random in-store EAN-13 code.
func Barcode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	if err != nil {
		n = big.NewInt(time.Now().UnixNano() % 1_000_000_000)
	}
	body := fmt.Sprintf("%s%09d", inStorePrefix, n.Int64())
	return body + string(rune('0'+CheckDigit(body)))
}

// CheckDigit computes the EAN-13 check digit for the first 12 digits.
func CheckDigit(digits string) int {
	sum := 0
	for i := 0; i < len(digits) && i < 12; i++ {
		d := int(digits[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// ValidEAN13 reports whether code is 13 digits with a correct check digit.
func ValidEAN13(code string) bool {
	if len(code) != 13 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return int(code[12]-'0') == CheckDigit(code[:12])
}
