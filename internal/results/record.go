// Package results holds the per-query result container and the merge and
// ranking rules applied to records returned by engines.
package results

import (
	"fmt"
	"time"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
)

// Template names the rendering template of a record and decides which
// fields are required.
type Template string

// Known templates.
const (
	TemplateDefault  Template = "default"
	TemplateImages   Template = "images"
	TemplateVideos   Template = "videos"
	TemplateTorrent  Template = "torrent"
	TemplatePackages Template = "packages"
	TemplateMap      Template = "map"
	TemplateKeyValue Template = "key-value"
)

// DefaultCategory is used for records that carry no category.
const DefaultCategory = "general"

// Record is one search result as produced by an engine.
// Records are treated as immutable once handed to a Container.
type Record struct {
	URL      string   `json:"url,omitempty"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	Template Template `json:"template"`
	Engine   string   `json:"engine"`
	Category string   `json:"category"`

	Thumbnail     string     `json:"thumbnail,omitempty"`
	ImgSrc        string     `json:"img_src,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Author        string     `json:"author,omitempty"`
	Tags          []string   `json:"tags,omitempty"`

	Seed       int    `json:"seed,omitempty"`
	Leech      int    `json:"leech,omitempty"`
	FileSize   int64  `json:"filesize,omitempty"`
	MagnetLink string `json:"magnetlink,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	PackageName string `json:"package_name,omitempty"`
	Version     string `json:"version,omitempty"`
	Popularity  int    `json:"popularity,omitempty"`

	// Position is the 1-based rank the engine gave this record.
	Position int `json:"position,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Normalized returns a copy of r with an empty template set to default.
func (r Record) Normalized() Record {
	if r.Template == "" {
		r.Template = TemplateDefault
	}
	return r
}

// Validate checks the fields the record's template requires.
func (r *Record) Validate() error {
	missing := func(field string) error {
		return serrors.New(serrors.ErrCodeUnexpectedFormat,
			fmt.Sprintf("%s result from %q is missing %s", r.Template, r.Engine, field), nil)
	}

	switch r.Template {
	case TemplateDefault, TemplateVideos:
		if r.URL == "" {
			return missing("url")
		}
		if r.Title == "" {
			return missing("title")
		}
	case TemplateImages:
		if r.URL == "" {
			return missing("url")
		}
		if r.ImgSrc == "" {
			return missing("img_src")
		}
	case TemplateTorrent:
		if r.Title == "" {
			return missing("title")
		}
		if r.URL == "" && r.MagnetLink == "" {
			return missing("url or magnetlink")
		}
	case TemplatePackages:
		if r.PackageName == "" && r.Title == "" {
			return missing("package_name")
		}
		if r.URL == "" {
			return missing("url")
		}
	case TemplateMap:
		if r.Title == "" {
			return missing("title")
		}
		if r.URL == "" && (r.Latitude == nil || r.Longitude == nil) {
			return missing("url or coordinates")
		}
	case TemplateKeyValue:
		if len(r.Extra) == 0 {
			return missing("extra")
		}
	case "":
		return missing("template")
	default:
		// Unknown templates only need something to link or show.
		if r.URL == "" && r.Title == "" {
			return missing("url or title")
		}
	}
	return nil
}

// Answer is a direct answer to the query, e.g. a definition or a calculation.
type Answer struct {
	// Type keys the answer; only the first answer of a type is kept.
	Type   string `json:"type"`
	Text   string `json:"answer"`
	URL    string `json:"url,omitempty"`
	Engine string `json:"engine"`
}

// Link is a titled URL attached to an infobox.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Attribute is a label/value row of an infobox.
type Attribute struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Infobox is a summary card about the query subject.
type Infobox struct {
	ID         string      `json:"id"`
	Title      string      `json:"infobox"`
	Content    string      `json:"content,omitempty"`
	ImgSrc     string      `json:"img_src,omitempty"`
	URLs       []Link      `json:"urls,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Engine     string      `json:"engine"`
	Engines    []string    `json:"engines"`
}

// Batch is everything one engine returned for one query.
type Batch struct {
	Records        []Record
	Suggestions    []string
	Corrections    []string
	Answers        []Answer
	Infoboxes      []Infobox
	EstimatedTotal int64
}

// IsEmpty reports whether the batch carries no content at all.
func (b *Batch) IsEmpty() bool {
	if b == nil {
		return true
	}
	return len(b.Records) == 0 && len(b.Suggestions) == 0 && len(b.Corrections) == 0 &&
		len(b.Answers) == 0 && len(b.Infoboxes) == 0
}
