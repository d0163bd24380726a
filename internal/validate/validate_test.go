package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/savegress/medledger/pkg/models"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// EIP-55 test vectors
		{"checksummed vector 1", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"checksummed vector 2", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", false},
		{"checksummed vector 3", "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB", false},
		{"checksummed vector 4", "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb", false},
		{"all lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"all uppercase", "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", false},
		{"bad checksum", "0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"missing prefix", "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"too short", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAe", true},
		{"too long", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed0", true},
		{"non-hex characters", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAzz", true},
		{"empty", "", true},
		{"bare prefix", "0x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Address(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Address(%q) = nil, want error", tt.input)
				}
				if !errors.Is(err, models.ErrInvalidAddress) {
					t.Errorf("Address(%q) error = %v, want ErrInvalidAddress", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Address(%q) = %v, want nil", tt.input, err)
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	got, err := Checksum("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("Checksum returned error: %v", err)
	}
	want := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if got != want {
		t.Errorf("Checksum = %s, want %s", got, want)
	}

	if _, err := Checksum("not-an-address"); err == nil {
		t.Error("Checksum accepted malformed input")
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	// A checksummed address must validate against itself.
	addr := "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	got, err := Checksum(strings.ToLower(addr))
	if err != nil {
		t.Fatalf("Checksum returned error: %v", err)
	}
	if got != addr {
		t.Errorf("Checksum = %s, want %s", got, addr)
	}
	if err := Address(got); err != nil {
		t.Errorf("Address rejected its own checksum form: %v", err)
	}
}

func TestRecordFields(t *testing.T) {
	valid := models.RecordFields{
		PatientID:   "P-42",
		PatientName: "Jane Doe",
		Diagnosis:   "Hypertension",
		Treatment:   "Lifestyle changes",
		Medication:  "Lisinopril 10mg",
	}

	if err := RecordFields(&valid); err != nil {
		t.Fatalf("RecordFields rejected a complete submission: %v", err)
	}

	tests := []struct {
		name      string
		mutate    func(f *models.RecordFields)
		wantField string
	}{
		{"missing patient id", func(f *models.RecordFields) { f.PatientID = "" }, "patientId"},
		{"whitespace patient id", func(f *models.RecordFields) { f.PatientID = "   " }, "patientId"},
		{"missing patient name", func(f *models.RecordFields) { f.PatientName = "" }, "patientName"},
		{"missing diagnosis", func(f *models.RecordFields) { f.Diagnosis = "" }, "diagnosis"},
		{"missing treatment", func(f *models.RecordFields) { f.Treatment = "" }, "treatment"},
		{"missing medication", func(f *models.RecordFields) { f.Medication = "" }, "medication"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)

			err := RecordFields(&f)
			if err == nil {
				t.Fatal("RecordFields = nil, want error")
			}
			var missing *models.MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("RecordFields error = %T, want *MissingFieldError", err)
			}
			if missing.Field != tt.wantField {
				t.Errorf("missing field = %s, want %s", missing.Field, tt.wantField)
			}
		})
	}

	t.Run("first missing field wins", func(t *testing.T) {
		err := RecordFields(&models.RecordFields{})
		var missing *models.MissingFieldError
		if !errors.As(err, &missing) {
			t.Fatalf("RecordFields error = %T, want *MissingFieldError", err)
		}
		if missing.Field != "patientId" {
			t.Errorf("missing field = %s, want patientId", missing.Field)
		}
	})
}
