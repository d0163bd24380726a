// Package validate contains pure input validation that runs before any
// network call, so malformed input never reaches the ledger.
package validate

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/savegress/medledger/pkg/models"
)

var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Address checks that s is a well-formed ledger account address:
// 0x-prefixed, 40 hex digits, with a valid EIP-55 mixed-case checksum.
// All-lowercase and all-uppercase forms carry no checksum and are
// accepted as-is.
func Address(s string) error {
	if !addressRegex.MatchString(s) {
		return fmt.Errorf("%w: %q", models.ErrInvalidAddress, s)
	}

	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}

	if checksumAddress(body) != body {
		return fmt.Errorf("%w: %q has a bad checksum", models.ErrInvalidAddress, s)
	}
	return nil
}

// checksumAddress returns the EIP-55 mixed-case form of a 40-hex-digit
// address body.
func checksumAddress(body string) string {
	lower := strings.ToLower(body)

	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(lower))
	digest := hex.EncodeToString(hash.Sum(nil))

	out := []byte(lower)
	for i := 0; i < len(out); i++ {
		if out[i] >= 'a' && out[i] <= 'f' && digest[i] >= '8' {
			out[i] -= 'a' - 'A'
		}
	}
	return string(out)
}

// Checksum returns the canonical EIP-55 form of a valid address.
func Checksum(s string) (string, error) {
	if !addressRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidAddress, s)
	}
	return "0x" + checksumAddress(s[2:]), nil
}

// recordFieldOrder fixes the order in which empty fields are reported
var recordFieldOrder = []string{"patientId", "patientName", "diagnosis", "treatment", "medication"}

// RecordFields checks that every required submission field is non-empty
// and reports the first one that is not.
func RecordFields(f *models.RecordFields) error {
	values := map[string]string{
		"patientId":   f.PatientID,
		"patientName": f.PatientName,
		"diagnosis":   f.Diagnosis,
		"treatment":   f.Treatment,
		"medication":  f.Medication,
	}

	for _, name := range recordFieldOrder {
		if strings.TrimSpace(values[name]) == "" {
			return &models.MissingFieldError{Field: name}
		}
	}
	return nil
}
