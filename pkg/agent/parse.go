package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/alantheprice/sitebuilder/pkg/patch"
)

// InvalidPatchFormat is the user-facing failure message for a reply that is
// not a JSON patch array.
const InvalidPatchFormat = "Invalid JSON patch format"

// ErrInvalidPatchFormat is returned by ParsePatches.
var ErrInvalidPatchFormat = errors.New("invalid JSON patch format")

// ParsePatches decodes the full model reply as a JSON array of patches.
// Surrounding whitespace is allowed; anything else around the array is not.
func ParsePatches(text string) ([]patch.FilePatch, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: reply is not a JSON array", ErrInvalidPatchFormat)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var raw []*patch.FilePatch
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatchFormat, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", ErrInvalidPatchFormat)
	}

	patches := make([]patch.FilePatch, 0, len(raw))
	for i, p := range raw {
		if p == nil {
			return nil, fmt.Errorf("%w: element %d is null", ErrInvalidPatchFormat, i)
		}
		patches = append(patches, *p)
	}
	return patches, nil
}
