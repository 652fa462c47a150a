package attachments

import (
	"path"
	"strings"
)

// Format tags an attachment reference by how it must be handled.
type Format string

const (
	// FormatPDF is already a canonical document and is mirrored as fetched.
	FormatPDF Format = "pdf"
	// FormatImage is a raster image that must be converted.
	FormatImage Format = "image"
)

// Classify decides the format from the reference name alone.
func Classify(ref string) Format {
	if strings.EqualFold(path.Ext(ref), ".pdf") {
		return FormatPDF
	}
	return FormatImage
}
