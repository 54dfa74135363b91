package datefix

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/barasher/go-exiftool"
)

// pngHeader is the PNG magic number plus enough of an IHDR chunk for sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

// createValidJPEG encodes a small real JPEG so content sniffing and exiftool
// both accept it.
func createValidJPEG(t *testing.T, dir, filename string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	return createFile(t, dir, filename, buf.Bytes())
}

// createTestExiftool creates an exiftool instance, skipping the test when
// the binary is not installed.
func createTestExiftool(t *testing.T) *exiftool.Exiftool {
	t.Helper()
	if _, err := exec.LookPath("exiftool"); err != nil {
		t.Skip("exiftool not installed")
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		t.Fatalf("Failed to create exiftool: %v", err)
	}
	t.Cleanup(func() { et.Close() })
	return et
}

func TestSniffHasPrefix(t *testing.T) {
	tmpDir := t.TempDir()
	pngFile := createFile(t, tmpDir, "real.png", pngHeader)
	textFile := createFile(t, tmpDir, "fake.png", []byte("just text"))

	if !sniffHasPrefix(pngFile, "image/") {
		t.Error("Expected PNG magic bytes to sniff as image/")
	}
	if sniffHasPrefix(textFile, "image/") {
		t.Error("Expected text content to not sniff as image/")
	}
	if sniffHasPrefix(filepath.Join(tmpDir, "missing.png"), "image/") {
		t.Error("Expected missing file to not sniff as anything")
	}
}

func TestImageWriter_CanHandle(t *testing.T) {
	tmpDir := t.TempDir()
	realJPEG := createValidJPEG(t, tmpDir, "real.jpg")
	fakeJPEG := createFile(t, tmpDir, "fake.jpg", []byte("just text"))
	textFile := createFile(t, tmpDir, "notes.txt", []byte("just text"))

	writer := newImageWriter(nil, "")

	if !writer.CanHandle(realJPEG) {
		t.Error("Expected real JPEG to be handled")
	}
	// A text file renamed to .jpg must not be rewritten.
	if writer.CanHandle(fakeJPEG) {
		t.Error("Expected fake JPEG to be rejected by content sniffing")
	}
	if writer.CanHandle(textFile) {
		t.Error("Expected unsupported extension to be rejected")
	}
}

func TestVideoWriter_CanHandle(t *testing.T) {
	tmpDir := t.TempDir()
	fakeMP4 := createFile(t, tmpDir, "fake.mp4", []byte("just text"))

	writer := newVideoWriter("")
	if writer.CanHandle(fakeMP4) {
		t.Error("Expected fake MP4 to be rejected by content sniffing")
	}
}

func TestWriterRegistry_UnsupportedFormat(t *testing.T) {
	tmpDir := t.TempDir()
	content := []byte("just text")
	textFile := createFile(t, tmpDir, "notes.txt", content)
	fakeJPEG := createFile(t, tmpDir, "fake.jpg", content)

	registry := NewWriterRegistry(nil)
	date := time.Date(2023, 8, 15, 0, 0, 0, 0, time.Local)

	for _, filePath := range []string{textFile, fakeJPEG} {
		err := registry.Write(filePath, date)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Expected ErrUnsupportedFormat for %s, got: %v", filePath, err)
		}
		after, readErr := os.ReadFile(filePath)
		if readErr != nil {
			t.Fatalf("Failed to re-read file: %v", readErr)
		}
		if !bytes.Equal(after, content) {
			t.Errorf("Expected %s to be left untouched", filePath)
		}
	}
}

func TestWriterRegistry_WriteAndRoundTrip(t *testing.T) {
	et := createTestExiftool(t)
	tmpDir := t.TempDir()
	filePath := createValidJPEG(t, tmpDir, "IMG-20230815-WA0001.jpg")

	registry := NewWriterRegistry(et)
	date := time.Date(2023, 8, 15, 0, 0, 0, 0, time.Local)
	if err := registry.Write(filePath, date); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Read the date back through exiftool.
	fileInfos := et.ExtractMetadata(filePath)
	if len(fileInfos) == 0 || fileInfos[0].Err != nil {
		t.Fatalf("Failed to read metadata back: %+v", fileInfos)
	}
	val, err := fileInfos[0].GetString("DateTimeOriginal")
	if err != nil {
		t.Fatalf("DateTimeOriginal not set: %v", err)
	}
	readBack, err := time.ParseInLocation(exifDateLayout, val, time.Local)
	if err != nil {
		t.Fatalf("Unparseable DateTimeOriginal %q: %v", val, err)
	}
	ry, rm, rd := readBack.Date()
	if ry != 2023 || rm != time.August || rd != 15 {
		t.Errorf("Expected 2023-08-15 back, got %q", val)
	}

	// Secondary step: filesystem timestamp follows the resolved date.
	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if !info.ModTime().Truncate(time.Second).Equal(date) {
		t.Errorf("Expected modTime %v, got %v", date, info.ModTime())
	}
}

func TestWriterRegistry_WriteIsIdempotent(t *testing.T) {
	et := createTestExiftool(t)
	tmpDir := t.TempDir()
	filePath := createValidJPEG(t, tmpDir, "IMG-20230815-WA0001.jpg")

	registry := NewWriterRegistry(et)
	date := time.Date(2023, 8, 15, 0, 0, 0, 0, time.Local)

	if err := registry.Write(filePath, date); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := registry.Write(filePath, date); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	fileInfos := et.ExtractMetadata(filePath)
	if len(fileInfos) == 0 || fileInfos[0].Err != nil {
		t.Fatalf("Failed to read metadata back: %+v", fileInfos)
	}
	val, err := fileInfos[0].GetString("DateTimeOriginal")
	if err != nil {
		t.Fatalf("DateTimeOriginal not set: %v", err)
	}
	if val != date.Format(exifDateLayout) {
		t.Errorf("Expected %s after repeat write, got %q", date.Format(exifDateLayout), val)
	}
}

func TestVideoWriter_WriteFailureLeavesOriginal(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	tmpDir := t.TempDir()
	content := []byte("not a real container")
	filePath := createFile(t, tmpDir, "Snapchat-42.mp4", content)

	writer := newVideoWriter("")
	err := writer.Write(filePath, time.Date(2023, 8, 15, 0, 0, 0, 0, time.Local))
	if err == nil {
		t.Fatal("Expected remux of a bogus container to fail")
	}

	after, readErr := os.ReadFile(filePath)
	if readErr != nil {
		t.Fatalf("Failed to re-read file: %v", readErr)
	}
	if !bytes.Equal(after, content) {
		t.Error("Expected original to be untouched after failed remux")
	}

	// The temporary remux target must be cleaned up.
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the original file to remain, found %d entries", len(entries))
	}
}
