package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/savegress/medledger/pkg/models"
)

// computeSelector returns the 4-byte function selector for a signature
func computeSelector(signature string) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	return "0x" + hex.EncodeToString(hash.Sum(nil)[:4])
}

// computeEventTopic returns the 32-byte topic hash for an event signature
func computeEventTopic(signature string) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	return "0x" + hex.EncodeToString(hash.Sum(nil))
}

const wordSize = 32

// padRight pads b with zero bytes up to a multiple of 32
func padRight(b []byte) []byte {
	if rem := len(b) % wordSize; rem != 0 {
		b = append(b, make([]byte, wordSize-rem)...)
	}
	return b
}

// encodeAddressWord encodes an address as a left-padded 32-byte word
func encodeAddressWord(address string) []byte {
	word := make([]byte, wordSize)
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(address), "0x"))
	if err == nil && len(raw) <= 20 {
		copy(word[wordSize-len(raw):], raw)
	}
	return word
}

// encodeUintWord encodes an unsigned integer as a 32-byte word
func encodeUintWord(n *big.Int) []byte {
	word := make([]byte, wordSize)
	b := n.Bytes()
	copy(word[wordSize-len(b):], b)
	return word
}

// encodeStringTail encodes the tail of a dynamic string: length word
// followed by the zero-padded bytes.
func encodeStringTail(s string) []byte {
	out := encodeUintWord(big.NewInt(int64(len(s))))
	return append(out, padRight([]byte(s))...)
}

// encodeAddressArg builds calldata for a single-address function
func encodeAddressArg(selector, address string) string {
	return selector + hex.EncodeToString(encodeAddressWord(address))
}

// encodeStringArgs builds calldata for a function taking only string
// arguments: a head of offsets followed by each string's tail.
func encodeStringArgs(selector string, args ...string) string {
	head := make([]byte, 0, wordSize*len(args))
	var tails []byte

	offset := wordSize * len(args)
	for _, s := range args {
		head = append(head, encodeUintWord(big.NewInt(int64(offset)))...)
		tail := encodeStringTail(s)
		tails = append(tails, tail...)
		offset += len(tail)
	}

	return selector + hex.EncodeToString(head) + hex.EncodeToString(tails)
}

// word reads the 32-byte word at offset as an unsigned big.Int
func word(data []byte, offset int) (*big.Int, error) {
	if offset < 0 || offset+wordSize > len(data) {
		return nil, fmt.Errorf("abi data too short: need word at %d, have %d bytes", offset, len(data))
	}
	return new(big.Int).SetBytes(data[offset : offset+wordSize]), nil
}

// wordInt reads a word that must fit in an int
func wordInt(data []byte, offset int) (int, error) {
	n, err := word(data, offset)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > int64(len(data)) {
		return 0, fmt.Errorf("abi offset out of range: %s", n)
	}
	return int(n.Int64()), nil
}

// decodeBool decodes a single ABI-encoded bool return value
func decodeBool(result string) (bool, error) {
	data, err := resultBytes(result)
	if err != nil {
		return false, err
	}
	n, err := word(data, 0)
	if err != nil {
		return false, err
	}
	return n.Sign() != 0, nil
}

// decodeAddress decodes a single ABI-encoded address return value
func decodeAddress(result string) (string, error) {
	data, err := resultBytes(result)
	if err != nil {
		return "", err
	}
	if len(data) < wordSize {
		return "", fmt.Errorf("abi data too short for address")
	}
	return "0x" + hex.EncodeToString(data[12:wordSize]), nil
}

// decodeStringAt decodes a dynamic string whose length word sits at
// offset within data.
func decodeStringAt(data []byte, offset int) (string, error) {
	length, err := wordInt(data, offset)
	if err != nil {
		return "", err
	}
	start := offset + wordSize
	if start+length > len(data) {
		return "", fmt.Errorf("abi string exceeds data bounds")
	}
	return string(data[start : start+length]), nil
}

// decodeRecords decodes the getMedicalRecords return value: a dynamic
// array of (uint256 recordID, string patientID, string patientName,
// string diagnosis, string treatment, string medication, address
// provider, uint256 timestamp) tuples.
func decodeRecords(result string) ([]models.MedicalRecord, error) {
	data, err := resultBytes(result)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []models.MedicalRecord{}, nil
	}

	arrOffset, err := wordInt(data, 0)
	if err != nil {
		return nil, err
	}
	count, err := wordInt(data, arrOffset)
	if err != nil {
		return nil, err
	}

	// Element offsets are relative to the start of the array data area,
	// which begins right after the length word.
	base := arrOffset + wordSize

	records := make([]models.MedicalRecord, 0, count)
	for i := 0; i < count; i++ {
		elemOffset, err := wordInt(data, base+wordSize*i)
		if err != nil {
			return nil, err
		}
		rec, err := decodeRecordTuple(data, base+elemOffset)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// decodeRecordTuple decodes one record tuple starting at tupBase.
// String offsets inside the tuple are relative to tupBase.
func decodeRecordTuple(data []byte, tupBase int) (models.MedicalRecord, error) {
	var rec models.MedicalRecord

	recordID, err := word(data, tupBase)
	if err != nil {
		return rec, err
	}
	rec.RecordID = recordID.Int64()

	strFields := []*string{&rec.PatientID, &rec.PatientName, &rec.Diagnosis, &rec.Treatment, &rec.Medication}
	for i, field := range strFields {
		strOffset, err := wordInt(data, tupBase+wordSize*(1+i))
		if err != nil {
			return rec, err
		}
		s, err := decodeStringAt(data, tupBase+strOffset)
		if err != nil {
			return rec, err
		}
		*field = s
	}

	if tupBase+wordSize*8 > len(data) {
		return rec, fmt.Errorf("abi data too short for record tuple")
	}
	addrWord := data[tupBase+wordSize*6 : tupBase+wordSize*7]
	rec.Provider = "0x" + hex.EncodeToString(addrWord[12:])

	ts, err := word(data, tupBase+wordSize*7)
	if err != nil {
		return rec, err
	}
	rec.Timestamp = time.Unix(ts.Int64(), 0).UTC()

	return rec, nil
}

// encodeRecords is the inverse of decodeRecords. The ledger emulator in
// the package tests serves responses built with it.
func encodeRecords(records []models.MedicalRecord) string {
	var elems [][]byte
	for _, rec := range records {
		elems = append(elems, encodeRecordTuple(rec))
	}

	// Array header: offset word, length word, element offset words
	body := encodeUintWord(big.NewInt(int64(len(elems))))
	elemOffset := wordSize * len(elems)
	var offsets, tails []byte
	for _, e := range elems {
		offsets = append(offsets, encodeUintWord(big.NewInt(int64(elemOffset)))...)
		tails = append(tails, e...)
		elemOffset += len(e)
	}
	body = append(body, offsets...)
	body = append(body, tails...)

	out := encodeUintWord(big.NewInt(wordSize))
	out = append(out, body...)
	return "0x" + hex.EncodeToString(out)
}

func encodeRecordTuple(rec models.MedicalRecord) []byte {
	strs := []string{rec.PatientID, rec.PatientName, rec.Diagnosis, rec.Treatment, rec.Medication}

	head := encodeUintWord(big.NewInt(rec.RecordID))
	var tails []byte
	offset := wordSize * 8
	for _, s := range strs {
		head = append(head, encodeUintWord(big.NewInt(int64(offset)))...)
		tail := encodeStringTail(s)
		tails = append(tails, tail...)
		offset += len(tail)
	}
	head = append(head, encodeAddressWord(rec.Provider)...)
	head = append(head, encodeUintWord(big.NewInt(rec.Timestamp.Unix()))...)

	return append(head, tails...)
}

// resultBytes strips the 0x prefix and hex-decodes an RPC result
func resultBytes(result string) ([]byte, error) {
	result = strings.TrimPrefix(result, "0x")
	if result == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(result)
	if err != nil {
		return nil, fmt.Errorf("decode hex result: %w", err)
	}
	return data, nil
}
