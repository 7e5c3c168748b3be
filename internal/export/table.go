package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yukikurage/annotation-api/internal/models"
)

const utf8BOM = "\ufeff"

var tableHeader = []string{
	"task_id", "task_title",
	"image_id", "image_filename", "image_width", "image_height", "folder_path",
	"annotation_id", "annotation_type", "label",
	"bbox_x", "bbox_y", "bbox_width", "bbox_height",
	"classification_value", "regression_value",
	"ranking", "ranking_count",
	"data_json", "notes", "status",
	"annotator_id", "annotator_name", "annotator_username",
	"reviewer_id", "reviewer_name", "reviewer_username",
	"review_notes", "created_at", "reviewed_at",
}

// tableRows renders one row per current annotation, which is one row per
// (image, annotator) pair.
func tableRows(snap *Snapshot) ([][]string, error) {
	names := ImageNames(snap.Images)
	current := snap.current()

	var rows [][]string
	for _, image := range snap.Images {
		for _, a := range current[image.ID] {
			dataJSON, err := json.Marshal(a.Data)
			if err != nil {
				return nil, fmt.Errorf("encode data of annotation %d: %w", a.ID, err)
			}

			row := []string{
				strconv.FormatUint(snap.Task.ID, 10), snap.Task.Title,
				strconv.FormatUint(image.ID, 10), names[image.ID], strconv.Itoa(image.Width), strconv.Itoa(image.Height), image.FolderPath,
				strconv.FormatUint(a.ID, 10), string(a.Kind), a.Label,
			}
			row = append(row, bboxColumns(a)...)
			row = append(row, classificationValue(a), regressionValue(a))
			row = append(row, rankingColumns(a)...)
			row = append(row, string(dataJSON), a.Notes, string(a.Status))
			row = append(row, strconv.FormatUint(a.AnnotatorID, 10), a.Annotator.FullName, a.Annotator.Username)
			row = append(row, reviewerColumns(a)...)
			row = append(row, a.ReviewNotes, formatTime(&a.CreatedAt), formatTime(a.ReviewedAt))
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func bboxColumns(a models.Annotation) []string {
	b, ok := bboxOf(a)
	if !ok {
		return []string{"", "", "", ""}
	}
	return []string{formatFloat(b.X), formatFloat(b.Y), formatFloat(b.Width), formatFloat(b.Height)}
}

func classificationValue(a models.Annotation) string {
	if a.Kind != models.KindClassification {
		return ""
	}
	if v, ok := a.Data["value"].(string); ok && v != "" {
		return v
	}
	return a.Label
}

func regressionValue(a models.Annotation) string {
	if a.Kind != models.KindRegression {
		return ""
	}
	if v, ok := number(a.Data["value"]); ok {
		return formatFloat(v)
	}
	return ""
}

func rankingColumns(a models.Annotation) []string {
	if a.Kind != models.KindRanking {
		return []string{"", ""}
	}
	ranking, _ := a.Data["ranking"].(string)
	return []string{ranking, strconv.Itoa(len(ranking))}
}

func reviewerColumns(a models.Annotation) []string {
	if a.ReviewerID == nil {
		return []string{"", "", ""}
	}
	columns := []string{strconv.FormatUint(*a.ReviewerID, 10), "", ""}
	if a.Reviewer != nil {
		columns[1] = a.Reviewer.FullName
		columns[2] = a.Reviewer.Username
	}
	return columns
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// csvEncoder writes annotations.csv with a byte order mark so spreadsheet
// applications detect UTF-8.
type csvEncoder struct{}

func (csvEncoder) Encode(snap *Snapshot) ([]Entry, error) {
	rows, err := tableRows(snap)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(tableHeader); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return []Entry{{Name: "annotations.csv", Data: buf.Bytes()}}, nil
}

const xlsxSheet = "Annotations"

// xlsxEncoder writes the CSV columns into annotations.xlsx.
type xlsxEncoder struct{}

func (xlsxEncoder) Encode(snap *Snapshot) ([]Entry, error) {
	rows, err := tableRows(snap)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return nil, err
	}

	write := func(row int, values []string) error {
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(xlsxSheet, cell, value); err != nil {
				return err
			}
		}
		return nil
	}

	if err := write(1, tableHeader); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := write(i+2, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(xlsxSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return []Entry{{Name: "annotations.xlsx", Data: buf.Bytes()}}, nil
}
