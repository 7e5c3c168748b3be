// Package export turns a task snapshot into the files of an export archive.
package export

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/yukikurage/annotation-api/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one annotation row in a snapshot. Current marks the latest row
// of its (image, annotator) pair.
type Record struct {
	Annotation models.Annotation
	Current    bool
}

// Snapshot is everything an encoder may read. Images are ordered by ID and
// records by image then ID.
type Snapshot struct {
	Task    models.Task
	Images  []models.Image
	Records []Record
}

// Entry is one file inside the archive.
type Entry struct {
	Name string
	Data []byte
}

// Encoder renders a snapshot. Encoders must be deterministic.
type Encoder interface {
	Encode(snap *Snapshot) ([]Entry, error)
}

// FormatInfo describes a supported format
type FormatInfo struct {
	Format      models.ExportFormat `json:"format"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
}

var formats = []FormatInfo{
	{models.ExportFormatPascalVOC, "Pascal VOC", "One XML file per image with bounding boxes"},
	{models.ExportFormatCOCO, "COCO", "Single JSON document with images, categories and bounding boxes"},
	{models.ExportFormatYOLO, "YOLO", "classes.txt plus one normalized label file per image"},
	{models.ExportFormatJSON, "JSON", "Full dump of the task, images and every annotation"},
	{models.ExportFormatCSV, "CSV", "One row per image and annotator, UTF-8 with BOM"},
	{models.ExportFormatXLSX, "Excel", "The CSV columns as an Excel workbook"},
}

// Formats lists every supported export format in display order.
func Formats() []FormatInfo {
	return append([]FormatInfo(nil), formats...)
}

// Supported reports whether format has an encoder.
func Supported(format models.ExportFormat) bool {
	for _, f := range formats {
		if f.Format == format {
			return true
		}
	}
	return false
}

// EncoderFor returns the encoder for format.
func EncoderFor(format models.ExportFormat) (Encoder, error) {
	switch format {
	case models.ExportFormatPascalVOC:
		return vocEncoder{}, nil
	case models.ExportFormatCOCO:
		return cocoEncoder{}, nil
	case models.ExportFormatYOLO:
		return yoloEncoder{}, nil
	case models.ExportFormatJSON:
		return jsonEncoder{}, nil
	case models.ExportFormatCSV:
		return csvEncoder{}, nil
	case models.ExportFormatXLSX:
		return xlsxEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ImageNames maps image IDs to unique file names inside the archive. A name
// shared by several images is prefixed with the image ID.
func ImageNames(images []models.Image) map[uint64]string {
	seen := make(map[string]int, len(images))
	for _, image := range images {
		seen[image.DisplayName()]++
	}

	names := make(map[uint64]string, len(images))
	for _, image := range images {
		name := image.DisplayName()
		if seen[name] > 1 {
			name = fmt.Sprintf("%d_%s", image.ID, name)
		}
		names[image.ID] = name
	}
	return names
}

// ImageStems maps image IDs to unique extension-less names for per-image
// sidecar files. Images whose names differ only by extension share a stem,
// so those stems are prefixed with the image ID.
func ImageStems(images []models.Image) map[uint64]string {
	names := ImageNames(images)
	seen := make(map[string]int, len(names))
	for _, image := range images {
		seen[baseName(names[image.ID])]++
	}

	stems := make(map[uint64]string, len(images))
	for _, image := range images {
		stem := baseName(names[image.ID])
		if seen[stem] > 1 {
			stem = fmt.Sprintf("%d_%s", image.ID, stem)
		}
		stems[image.ID] = stem
	}
	return stems
}

func baseName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// current returns the snapshot's current records grouped by image ID.
func (s *Snapshot) current() map[uint64][]models.Annotation {
	byImage := make(map[uint64][]models.Annotation)
	for _, record := range s.Records {
		if record.Current {
			byImage[record.Annotation.ImageID] = append(byImage[record.Annotation.ImageID], record.Annotation)
		}
	}
	return byImage
}

type box struct {
	X, Y, Width, Height float64
}

// bboxOf reads the bounding box of a bbox annotation.
func bboxOf(annotation models.Annotation) (box, bool) {
	if annotation.Kind != models.KindBoundingBox {
		return box{}, false
	}
	var b box
	var ok bool
	if b.X, ok = number(annotation.Data["x"]); !ok {
		return box{}, false
	}
	if b.Y, ok = number(annotation.Data["y"]); !ok {
		return box{}, false
	}
	if b.Width, ok = number(annotation.Data["width"]); !ok {
		return box{}, false
	}
	if b.Height, ok = number(annotation.Data["height"]); !ok {
		return box{}, false
	}
	return b, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func labelOf(annotation models.Annotation) string {
	if annotation.Label == "" {
		return "unlabeled"
	}
	return annotation.Label
}

func round(f float64) int {
	return int(math.Round(f))
}
