package datefix

import (
	"path/filepath"
	"slices"
	"strings"
)

// Capability describes which writer family handles a file.
type Capability int

const (
	// CapabilityNone means no writer can update the file's metadata.
	CapabilityNone Capability = iota
	// CapabilityImage means the file takes EXIF-style date tags.
	CapabilityImage
	// CapabilityVideo means the file takes container-level creation_time.
	CapabilityVideo
)

// Extensions defines the interface for file extension operations.
type Extensions interface {
	// IsImage returns true if the file extension is a supported image format.
	IsImage(filePath string) bool
	// IsVideo returns true if the file extension is a supported video format.
	IsVideo(filePath string) bool
	// IsSupported returns true if the file extension is any supported media format.
	IsSupported(filePath string) bool
	// Capability returns the writer family for the file extension.
	Capability(filePath string) Capability
}

// extensions implements the Extensions interface.
type extensions struct {
	imageExts []string
	videoExts []string
}

// NewExtensions creates a new Extensions instance. The tables cover every
// extension produced by the supported origins; adding an origin means
// extending these lists, not changing the pipeline.
func NewExtensions() Extensions {
	return &extensions{
		imageExts: []string{".jpg", ".jpeg", ".png", ".webp", ".heic"},
		videoExts: []string{".mp4", ".mov"},
	}
}

// IsImage returns true if the file extension is a supported image format.
func (e *extensions) IsImage(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return slices.Contains(e.imageExts, ext)
}

// IsVideo returns true if the file extension is a supported video format.
func (e *extensions) IsVideo(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return slices.Contains(e.videoExts, ext)
}

// IsSupported returns true if the file extension is any supported media format.
func (e *extensions) IsSupported(filePath string) bool {
	return e.IsImage(filePath) || e.IsVideo(filePath)
}

// Capability returns the writer family for the file extension.
func (e *extensions) Capability(filePath string) Capability {
	switch {
	case e.IsImage(filePath):
		return CapabilityImage
	case e.IsVideo(filePath):
		return CapabilityVideo
	default:
		return CapabilityNone
	}
}
