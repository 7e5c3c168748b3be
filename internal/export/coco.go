package export

type cocoDocument struct {
	Info        cocoInfo         `json:"info"`
	Licenses    []any            `json:"licenses"`
	Images      []cocoImage      `json:"images"`
	Categories  []cocoCategory   `json:"categories"`
	Annotations []cocoAnnotation `json:"annotations"`
}

type cocoInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
	Contributor string `json:"contributor"`
}

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

type cocoAnnotation struct {
	ID           uint64     `json:"id"`
	ImageID      int        `json:"image_id"`
	CategoryID   int        `json:"category_id"`
	BBox         [4]float64 `json:"bbox"`
	Area         float64    `json:"area"`
	IsCrowd      int        `json:"iscrowd"`
	Segmentation []any      `json:"segmentation"`
}

// cocoEncoder writes a single annotations.json. Categories are numbered in
// the order their label is first seen among the bounding boxes.
type cocoEncoder struct{}

func (cocoEncoder) Encode(snap *Snapshot) ([]Entry, error) {
	names := ImageNames(snap.Images)
	current := snap.current()

	doc := cocoDocument{
		Info: cocoInfo{
			Description: snap.Task.Title,
			Version:     "1.0",
			Contributor: "annotation-api",
		},
		Licenses:    []any{},
		Images:      make([]cocoImage, 0, len(snap.Images)),
		Categories:  []cocoCategory{},
		Annotations: []cocoAnnotation{},
	}

	categories := make(map[string]int)
	for idx, image := range snap.Images {
		imageID := idx + 1
		doc.Images = append(doc.Images, cocoImage{
			ID:       imageID,
			FileName: names[image.ID],
			Width:    image.Width,
			Height:   image.Height,
		})

		for _, annotation := range current[image.ID] {
			b, ok := bboxOf(annotation)
			if !ok {
				continue
			}

			label := labelOf(annotation)
			categoryID, seen := categories[label]
			if !seen {
				categoryID = len(categories) + 1
				categories[label] = categoryID
				doc.Categories = append(doc.Categories, cocoCategory{
					ID:            categoryID,
					Name:          label,
					Supercategory: "object",
				})
			}

			doc.Annotations = append(doc.Annotations, cocoAnnotation{
				ID:           annotation.ID,
				ImageID:      imageID,
				CategoryID:   categoryID,
				BBox:         [4]float64{b.X, b.Y, b.Width, b.Height},
				Area:         b.Width * b.Height,
				Segmentation: []any{},
			})
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return []Entry{{Name: "annotations.json", Data: data}}, nil
}
