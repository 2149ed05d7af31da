package mediatypes

import (
	"fmt"
	"strings"
)

// Kind selects the processing strategy for a media file.
type Kind string

const (
	// KindRaster covers pixel-based formats (JPEG, PNG, GIF, TIFF, ...).
	KindRaster Kind = "raster"
	// KindVector covers vector documents (SVG).
	KindVector Kind = "vector"
	// KindDocument covers paged documents indexed by their first page (PDF, EPS).
	KindDocument Kind = "document"
)

// Rule maps a set of file extensions to a mimetype and a processing kind.
// Rules are immutable after load.
type Rule struct {
	Extensions []string
	Mimetype   string
	Kind       Kind
}

// ParseRule builds a Rule from a comma-separated extension list.
// Extensions are lowercased and stored without the leading dot.
func ParseRule(extensions, mimetype string, kind Kind) (Rule, error) {
	switch kind {
	case KindRaster, KindVector, KindDocument:
	default:
		return Rule{}, fmt.Errorf("unknown media kind %q", kind)
	}

	var exts []string
	for _, e := range strings.Split(extensions, ",") {
		e = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(e)), ".")
		if e != "" {
			exts = append(exts, e)
		}
	}
	if len(exts) == 0 {
		return Rule{}, fmt.Errorf("media type %q has no extensions", mimetype)
	}
	if mimetype == "" {
		return Rule{}, fmt.Errorf("media type for %q has no mimetype", extensions)
	}

	return Rule{Extensions: exts, Mimetype: mimetype, Kind: kind}, nil
}

// Rules is an extension-indexed set of media type rules.
type Rules struct {
	byExt map[string]*Rule
}

// NewRules indexes the given rules by extension. Later rules never override
// earlier ones, matching first-rule-wins classification.
func NewRules(rules []Rule) *Rules {
	r := &Rules{byExt: make(map[string]*Rule)}
	for i := range rules {
		for _, ext := range rules[i].Extensions {
			if _, ok := r.byExt[ext]; !ok {
				r.byExt[ext] = &rules[i]
			}
		}
	}
	return r
}

// Match returns the rule for a file extension, or nil if the extension is
// not a configured media type. The extension may carry a leading dot and
// any case.
func (r *Rules) Match(ext string) *Rule {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		return nil
	}
	return r.byExt[ext]
}

// Len returns the number of distinct extensions covered.
func (r *Rules) Len() int {
	return len(r.byExt)
}

// Defaults returns the rule set used when the config file does not declare
// any media types.
func Defaults() []Rule {
	return []Rule{
		{Extensions: []string{"jpg", "jpeg"}, Mimetype: "image/jpeg", Kind: KindRaster},
		{Extensions: []string{"png"}, Mimetype: "image/png", Kind: KindRaster},
		{Extensions: []string{"gif"}, Mimetype: "image/gif", Kind: KindRaster},
		{Extensions: []string{"tif", "tiff"}, Mimetype: "image/tiff", Kind: KindRaster},
		{Extensions: []string{"bmp"}, Mimetype: "image/bmp", Kind: KindRaster},
		{Extensions: []string{"webp"}, Mimetype: "image/webp", Kind: KindRaster},
		{Extensions: []string{"svg"}, Mimetype: "image/svg+xml", Kind: KindVector},
		{Extensions: []string{"pdf"}, Mimetype: "application/pdf", Kind: KindDocument},
		{Extensions: []string{"eps"}, Mimetype: "image/x-eps", Kind: KindDocument},
	}
}
