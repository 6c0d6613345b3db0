package validate

import (
	"encoding/json"
	"errors"
)

// Metadata validation errors.
var (
	ErrMetadataTooLarge = errors.New("metadata exceeds size limit")
	ErrMetadataNotJSON  = errors.New("metadata is not valid JSON")
)

// MaxMetadataBytes caps the size of the caller-supplied metadata blob.
// The blob is stored verbatim and returned on reads, so the cap keeps rows
// and responses bounded.
const MaxMetadataBytes = 16 * 1024

// Metadata checks that a metadata blob is valid JSON within the size limit.
// An empty blob is valid.
func Metadata(blob json.RawMessage) error {
	if len(blob) == 0 {
		return nil
	}
	if len(blob) > MaxMetadataBytes {
		return ErrMetadataTooLarge
	}
	if !json.Valid(blob) {
		return ErrMetadataNotJSON
	}
	return nil
}
