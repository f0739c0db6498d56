// Package imageproc converts locally selected images into data URIs
// suitable for embedding in a JSON request, and validates data URIs
// supplied by the user.
package imageproc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// defaultPrefix is assumed for raw base64 payloads with no data-URI header.
const defaultPrefix = "data:image/jpeg;base64,"

var supportedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

var dataURIPattern = regexp.MustCompile(`^data:(image/(?:jpeg|png|gif|webp));base64,(.+)$`)

// EnsureDataURI prefixes a raw base64 payload with the default image
// data-URI header. Payloads that already carry a data: prefix are
// returned unchanged, so repeated calls never double-prefix.
func EnsureDataURI(data string) string {
	if strings.HasPrefix(data, "data:") {
		return data
	}
	return defaultPrefix + data
}

// EncodeBytes sniffs the mime type of raw image bytes and encodes them
// as a data URI. Unsupported or unrecognizable content is rejected.
func EncodeBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("image data is empty")
	}
	mime := http.DetectContentType(data)
	if _, ok := supportedMIMETypes[mime]; !ok {
		return "", fmt.Errorf("unsupported image type %s, supported types: %s", mime, supportedTypeList())
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

// DecodeDataURI parses a data:image/<type>;base64,<data> string and
// returns its mime type and decoded bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", nil, fmt.Errorf("invalid data URL format, expected data:image/<type>;base64,<data> where type is one of: %s", supportedTypeList())
	}
	decoded, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, fmt.Errorf("decode base64 data: %w", err)
	}
	return m[1], decoded, nil
}

func supportedTypeList() string {
	types := make([]string, 0, len(supportedMIMETypes))
	for t := range supportedMIMETypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}
