package export

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// yoloEncoder writes classes.txt, sorted alphabetically, and one label file
// per image with center based coordinates normalized by the image size.
// Images without known dimensions get no label file.
type yoloEncoder struct{}

func (yoloEncoder) Encode(snap *Snapshot) ([]Entry, error) {
	stems := ImageStems(snap.Images)
	current := snap.current()

	labels := mapset.NewThreadUnsafeSet[string]()
	for _, annotations := range current {
		for _, annotation := range annotations {
			if _, ok := bboxOf(annotation); ok {
				labels.Add(labelOf(annotation))
			}
		}
	}
	classes := labels.ToSlice()
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, label := range classes {
		index[label] = i
	}

	entries := []Entry{{Name: "classes.txt", Data: []byte(joinLines(classes))}}
	for _, image := range snap.Images {
		if image.Width <= 0 || image.Height <= 0 {
			continue
		}
		w, h := float64(image.Width), float64(image.Height)

		var lines []string
		for _, annotation := range current[image.ID] {
			b, ok := bboxOf(annotation)
			if !ok {
				continue
			}
			lines = append(lines, fmt.Sprintf("%d %.6f %.6f %.6f %.6f",
				index[labelOf(annotation)],
				(b.X+b.Width/2)/w,
				(b.Y+b.Height/2)/h,
				b.Width/w,
				b.Height/h,
			))
		}

		entries = append(entries, Entry{
			Name: "labels/" + stems[image.ID] + ".txt",
			Data: []byte(joinLines(lines)),
		})
	}
	return entries, nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
