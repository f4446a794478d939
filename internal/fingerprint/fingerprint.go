package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"image"

	"sigilum/internal/faults"
)

// Length is the number of hex characters returned by Of.
const Length = 12

// Canonical renders v as compact JSON with sorted map keys.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "fingerprint", "canonicalize", "value is not serializable", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Of returns a short stable digest of v.
func Of(v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:Length], nil
}

// MustOf is Of for values known to be serializable. It panics otherwise.
func MustOf(v any) string {
	digest, err := Of(v)
	if err != nil {
		panic(err)
	}
	return digest
}

// ContentHash returns the full hex SHA-256 over the image dimensions and its
// visible pixel rows. Stride padding and the image origin do not participate.
func ContentHash(img *image.Gray) string {
	h := sha256.New()
	if img == nil {
		return hex.EncodeToString(h.Sum(nil))
	}
	bounds := img.Bounds()
	var dims [16]byte
	binary.BigEndian.PutUint64(dims[:8], uint64(bounds.Dx()))
	binary.BigEndian.PutUint64(dims[8:], uint64(bounds.Dy()))
	h.Write(dims[:])
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		start := img.PixOffset(bounds.Min.X, y)
		h.Write(img.Pix[start : start+bounds.Dx()])
	}
	return hex.EncodeToString(h.Sum(nil))
}
