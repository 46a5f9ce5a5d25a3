package results

import (
	"sort"
	"strings"
)

// foldedSet is a case-insensitive string set. Values are stored trimmed and
// lower-cased, so "Cats" and "cats" are one entry.
type foldedSet struct {
	items map[string]struct{}
}

func newFoldedSet() *foldedSet {
	return &foldedSet{items: make(map[string]struct{})}
}

func (s *foldedSet) add(v string) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return
	}
	s.items[v] = struct{}{}
}

// sorted returns the members in lexical order.
func (s *foldedSet) sorted() []string {
	out := make([]string, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// answerSet keeps the first answer registered for each answer type.
type answerSet struct {
	byType map[string]Answer
}

func newAnswerSet() *answerSet {
	return &answerSet{byType: make(map[string]Answer)}
}

func (s *answerSet) add(a Answer) {
	if strings.TrimSpace(a.Text) == "" {
		return
	}
	key := a.Type
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(a.Text))
	}
	if _, ok := s.byType[key]; ok {
		return
	}
	a.Type = key
	s.byType[key] = a
}

func (s *answerSet) sorted() []Answer {
	out := make([]Answer, 0, len(s.byType))
	for _, a := range s.byType {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// infoboxEntry accumulates infoboxes that describe the same subject.
type infoboxEntry struct {
	id    string
	boxes []weightedInfobox
}

type weightedInfobox struct {
	box    Infobox
	weight float64
}

// infoboxKey identifies an infobox by its ID URL, or by title when no ID is set.
func infoboxKey(b Infobox) string {
	if id := NormalizeURL(b.ID); id != "" {
		return id
	}
	return "title:" + normalizeTitle(b.Title)
}

// merged folds the infoboxes of one subject. Text fields come from the
// highest-weight engine; links and attributes are unioned.
func (e *infoboxEntry) merged() Infobox {
	boxes := append([]weightedInfobox(nil), e.boxes...)
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].weight != boxes[j].weight {
			return boxes[i].weight > boxes[j].weight
		}
		return boxes[i].box.Engine < boxes[j].box.Engine
	})

	var out Infobox
	seenURL := make(map[string]bool)
	seenAttr := make(map[string]bool)
	engines := make(map[string]bool)

	for _, wb := range boxes {
		b := wb.box
		firstString(&out.ID, b.ID)
		firstString(&out.Title, b.Title)
		firstString(&out.Content, b.Content)
		firstString(&out.ImgSrc, b.ImgSrc)
		firstString(&out.Engine, b.Engine)
		engines[b.Engine] = true

		for _, l := range b.URLs {
			k := NormalizeURL(l.URL)
			if k == "" || seenURL[k] {
				continue
			}
			seenURL[k] = true
			out.URLs = append(out.URLs, l)
		}
		for _, a := range b.Attributes {
			k := strings.ToLower(a.Label)
			if seenAttr[k] {
				continue
			}
			seenAttr[k] = true
			out.Attributes = append(out.Attributes, a)
		}
	}

	for name := range engines {
		out.Engines = append(out.Engines, name)
	}
	sort.Strings(out.Engines)
	return out
}
