package export

import (
	"encoding/xml"
)

type vocAnnotation struct {
	XMLName   xml.Name    `xml:"annotation"`
	Folder    string      `xml:"folder"`
	Filename  string      `xml:"filename"`
	Source    vocSource   `xml:"source"`
	Size      vocSize     `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []vocObject `xml:"object"`
}

type vocSource struct {
	Database string `xml:"database"`
}

type vocSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type vocObject struct {
	Name      string    `xml:"name"`
	Pose      string    `xml:"pose"`
	Truncated int       `xml:"truncated"`
	Difficult int       `xml:"difficult"`
	BndBox    vocBndBox `xml:"bndbox"`
}

type vocBndBox struct {
	XMin int `xml:"xmin"`
	YMin int `xml:"ymin"`
	XMax int `xml:"xmax"`
	YMax int `xml:"ymax"`
}

// vocEncoder writes annotations/<image>.xml for every image. Only bounding
// boxes become objects; other kinds are skipped.
type vocEncoder struct{}

func (vocEncoder) Encode(snap *Snapshot) ([]Entry, error) {
	names := ImageNames(snap.Images)
	stems := ImageStems(snap.Images)
	current := snap.current()

	entries := make([]Entry, 0, len(snap.Images))
	for _, image := range snap.Images {
		doc := vocAnnotation{
			Folder:   "images",
			Filename: names[image.ID],
			Source:   vocSource{Database: snap.Task.Title},
			Size:     vocSize{Width: image.Width, Height: image.Height, Depth: 3},
		}

		for _, annotation := range current[image.ID] {
			b, ok := bboxOf(annotation)
			if !ok {
				continue
			}
			doc.Objects = append(doc.Objects, vocObject{
				Name: labelOf(annotation),
				Pose: "Unspecified",
				BndBox: vocBndBox{
					XMin: round(b.X),
					YMin: round(b.Y),
					XMax: round(b.X + b.Width),
					YMax: round(b.Y + b.Height),
				},
			})
		}

		data, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Name: "annotations/" + stems[image.ID] + ".xml",
			Data: append([]byte(xml.Header), data...),
		})
	}
	return entries, nil
}
