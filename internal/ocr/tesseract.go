package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultPSM assumes a single uniform block of text.
const DefaultPSM = 6

// TesseractOptions configures the tesseract CLI extractor.
type TesseractOptions struct {
	BinPath string
	Lang    string
	PSM     int
	Timeout time.Duration
}

// Tesseract extracts text from images using the tesseract CLI tool.
type Tesseract struct {
	binPath string
	lang    string
	psm     int
	timeout time.Duration
}

// NewTesseract creates a Tesseract extractor. Empty options fall back to
// "tesseract" on PATH, English and page segmentation mode 6.
func NewTesseract(opts TesseractOptions) *Tesseract {
	t := &Tesseract{
		binPath: opts.BinPath,
		lang:    opts.Lang,
		psm:     opts.PSM,
		timeout: opts.Timeout,
	}
	if t.binPath == "" {
		t.binPath = "tesseract"
	}
	if t.lang == "" {
		t.lang = "eng"
	}
	if t.psm <= 0 {
		t.psm = DefaultPSM
	}
	return t
}

func (t *Tesseract) args(imagePath string) []string {
	return []string{imagePath, "stdout", "-l", t.lang, "--psm", strconv.Itoa(t.psm)}
}

// ExtractText runs tesseract on the image and returns stdout.
func (t *Tesseract) ExtractText(ctx context.Context, imagePath string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.binPath, t.args(imagePath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: tesseract failed for %s: %s", imagePath, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
