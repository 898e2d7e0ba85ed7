package ocr

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidImage is returned when decoded bytes are not a supported image.
var ErrInvalidImage = eris.New("ocr: invalid image")

// DecodeBase64Image decodes a base64 screenshot, accepting an optional
// "data:<mime>;base64," prefix, and checks that the bytes are an image.
func DecodeBase64Image(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}
	if encoded == "" {
		return nil, eris.Wrap(ErrInvalidImage, "empty payload")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidImage, "base64: %v", err)
	}
	if err := CheckImage(data); err != nil {
		return nil, err
	}
	return data, nil
}

// CheckImage reports ErrInvalidImage unless data starts with a PNG, JPEG or
// GIF header.
func CheckImage(data []byte) error {
	if len(data) == 0 {
		return eris.Wrap(ErrInvalidImage, "empty file")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return eris.Wrapf(ErrInvalidImage, "decode: %v", err)
	}
	return nil
}

// SaveTempImage writes data to a new file in dir named after pattern (see
// os.CreateTemp) and returns its path. Each call gets its own file, so
// concurrent requests never read each other's images.
func SaveTempImage(dir, pattern string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "ocr: create dir %s", dir)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: create image in %s", dir)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()           //nolint:errcheck
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrapf(err, "ocr: write image %s", f.Name())
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrapf(err, "ocr: close image %s", f.Name())
	}
	return f.Name(), nil
}

// UploadPattern builds a CreateTemp pattern for an uploaded file, keeping
// only the client's extension.
func UploadPattern(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if strings.ContainsAny(ext, `/\*`) {
		ext = ""
	}
	return prefix + "-*" + ext
}
