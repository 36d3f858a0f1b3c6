package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// ticketCodePrefix marks printed ticket codes, e.g. QT-9F3A10.
const ticketCodePrefix = "QT-"

func GenerateCode(n int) (string, error) {
	// Make a slice of n random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateTicketCode returns a short printable code for a ticket, six hex
// characters behind the QT- prefix. Codes are display identifiers only;
// uniqueness is carried by (scope, period, number).
func GenerateTicketCode() (string, error) {
	code, err := GenerateCode(3)
	if err != nil {
		return "", err
	}
	return ticketCodePrefix + code, nil
}
