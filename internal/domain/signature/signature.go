// Package signature derives a content-identity string from an exercise
// or task. The signature is used only when no explicit link record or
// previously established mapping exists.
package signature

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/drillbook/internal/domain/model"
)

// Separator joins the normalized parts. The normalization pipeline never
// emits control characters, so the separator cannot collide with content.
const Separator = "\x1f"

// foldDiacritics strips combining marks after NFD decomposition.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC) //nolint:gochecknoglobals // immutable transformer chain

var caseFolder = cases.Fold() //nolint:gochecknoglobals // immutable caser

// Of builds the content signature from the three identity parts.
// An empty normalized title yields an empty signature; callers must treat
// an empty signature as unmatchable, never as a wildcard.
func Of(title, description, video string) string {
	t := Normalize(title)
	if t == "" {
		return ""
	}
	return t + Separator + Normalize(description) + Separator + VideoKey(video)
}

// OfExercise builds the signature for an exercise.
func OfExercise(e model.Exercise) string {
	return Of(e.Title, e.Description, e.VideoIdentity)
}

// OfTask builds the signature for a task.
func OfTask(t model.Task) string {
	return Of(t.Title, t.Description, t.VideoIdentity)
}

// Normalize diacritic-folds, case-folds, collapses whitespace and trims.
func Normalize(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		// Transform only fails on malformed input; fall back to the raw string.
		folded = s
	}
	folded = caseFolder.String(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// VideoKey extracts a canonical key from a video URL or opaque identifier.
// For recognizable URLs the key is derived from the host and path (or the
// host-specific video id); anything else falls back to the case-folded raw
// string. Missing video identity yields an empty key.
func VideoKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return caseFolder.String(trimmed)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.Trim(u.Path, "/")

	switch host {
	case "youtube.com", "m.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "youtube:" + id
		}
	case "youtu.be":
		if path != "" {
			return "youtube:" + path
		}
	case "vimeo.com":
		if path != "" {
			return "vimeo:" + path
		}
	}

	if path == "" {
		return host
	}
	return host + "/" + strings.ToLower(path)
}
