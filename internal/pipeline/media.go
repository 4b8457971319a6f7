package pipeline

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/heureca/wppgateway/internal/errs"
)

// MediaType selects the size ceiling and accepted formats for a payload.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
	MediaSticker  MediaType = "sticker"
)

// Size ceilings mirror what the upstream transport accepts per media class.
const (
	MaxImageBytes    = 5 << 20
	MaxAudioBytes    = 16 << 20
	MaxDocumentBytes = 100 << 20
	MaxStickerBytes  = 500 << 10
)

func sizeCeiling(t MediaType) int {
	switch t {
	case MediaImage:
		return MaxImageBytes
	case MediaAudio:
		return MaxAudioBytes
	case MediaDocument:
		return MaxDocumentBytes
	case MediaSticker:
		return MaxStickerBytes
	default:
		return MaxDocumentBytes
	}
}

// validateMedia checks a base64 payload without decoding it in full: the
// decoded size is derived from the encoded length, and only the first few
// bytes are decoded to sniff the container format.
func validateMedia(encoded string, t MediaType) *errs.Error {
	encoded = stripDataURI(encoded)
	if strings.TrimSpace(encoded) == "" {
		return errs.Validation("media payload is required")
	}
	decodedLen := base64.StdEncoding.DecodedLen(len(encoded))
	if ceiling := sizeCeiling(t); decodedLen > ceiling {
		return errs.Validation(fmt.Sprintf("%s payload exceeds %d bytes", t, ceiling))
	}
	head := encoded
	if len(head) > 16 {
		head = head[:16]
	}
	if _, err := base64.StdEncoding.DecodeString(head[:len(head)/4*4]); err != nil {
		return errs.Validation("media payload is not valid base64")
	}
	return nil
}

// stripDataURI drops a leading "data:<mime>;base64," prefix if present.
func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}
