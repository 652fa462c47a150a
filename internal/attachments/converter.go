package attachments

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Images without resolution metadata are assumed to be 96 dpi.
const assumedDPI = 96.0

// PDFConverter turns one raster image into a single-page PDF sized to the image.
type PDFConverter struct {
	// StageDir holds the staged image while it is converted. Empty means os.TempDir.
	StageDir string
}

// NewPDFConverter creates a converter staging images under dir.
func NewPDFConverter(dir string) *PDFConverter {
	return &PDFConverter{StageDir: dir}
}

// Convert stages raw to a temporary file, embeds it in a PDF page and removes
// every staged file before returning. JPEG data is embedded as is; other
// formats are re-encoded as 8-bit PNG first.
func (c *PDFConverter) Convert(ctx context.Context, name string, raw []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	staged, err := c.stage(raw, filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("Convert: %w", err)
	}
	defer os.Remove(staged)

	cfg, format, err := decodeConfig(staged)
	if err != nil {
		return nil, fmt.Errorf("Convert: %q is not a supported image: %w", name, err)
	}

	src, imageType := staged, "JPG"
	if format != "jpeg" {
		src, err = c.normalize(staged)
		if err != nil {
			return nil, fmt.Errorf("Convert: %w", err)
		}
		defer os.Remove(src)
		imageType = "PNG"
	}

	w := float64(cfg.Width) * 72 / assumedDPI
	h := float64(cfg.Height) * 72 / assumedDPI

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.ImageOptions(src, 0, 0, w, h, false, fpdf.ImageOptions{ImageType: imageType}, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("Convert: render pdf for %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (c *PDFConverter) stage(raw []byte, ext string) (string, error) {
	f, err := os.CreateTemp(c.StageDir, "stage-*"+ext)
	if err != nil {
		return "", fmt.Errorf("stage image: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("stage image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("stage image: %w", err)
	}
	return f.Name(), nil
}

// normalize decodes the staged image and writes it back as an 8-bit NRGBA PNG.
func (c *PDFConverter) normalize(staged string) (string, error) {
	in, err := os.Open(staged)
	if err != nil {
		return "", err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	flat := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Src)

	out, err := os.CreateTemp(c.StageDir, "stage-*.png")
	if err != nil {
		return "", fmt.Errorf("stage png: %w", err)
	}
	if err := png.Encode(out, flat); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func decodeConfig(path string) (image.Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()
	return image.DecodeConfig(f)
}
