package resolver

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"mediadex/models"
	"mediadex/utils/torname"
)

// ErrNoTitle is returned when the tokenizer produced no usable title for a
// release name. A resolution pass cannot proceed past this point.
var ErrNoTitle = errors.New("release name yields no usable title")

// ParseRelease turns a raw release name into a ReleaseInfo working record.
// When the name carries a localized subtitle, the subtitle becomes the
// primary matching title; the local-language title is the more discriminating
// search key.
func ParseRelease(name string) (models.ReleaseInfo, error) {
	tok := torname.Tokenize(name)

	title := tok.Title
	if tok.Subtitle != "" {
		title = tok.Subtitle
	}
	if title == "" {
		return models.ReleaseInfo{}, ErrNoTitle
	}

	return models.ReleaseInfo{
		Torname:    name,
		Title:      title,
		Subtitle:   tok.Subtitle,
		Season:     tok.Season,
		Episode:    tok.Episode,
		Year:       tok.Year,
		Resolution: tok.Resolution,
		Source:     tok.Source,
		VideoCodec: tok.VideoCodec,
		AudioCodec: tok.AudioCodec,
		Group:      tok.Group,
		Category:   models.ParseCategory(tok.Category),
	}, nil
}

var tmdbStrPattern = regexp.MustCompile(`(?i)^(m(?:ovie)?|t(?:v)?)?[-_]?(\d+)$`)

// ParseTMDBStr splits a compound "category-id" string such as "movie-603",
// "tv_1399", "m603" or a bare "603" into its category and numeric id. A bare
// number carries no category.
func ParseTMDBStr(s string) (models.Category, int64) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.CategoryUnknown, 0
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.CategoryUnknown, id
	}
	m := tmdbStrPattern.FindStringSubmatch(s)
	if m == nil {
		return models.CategoryUnknown, 0
	}
	id, _ := strconv.ParseInt(m[2], 10, 64)
	cat := models.CategoryUnknown
	if m[1] != "" {
		if strings.HasPrefix(strings.ToLower(m[1]), "m") {
			cat = models.CategoryMovie
		} else {
			cat = models.CategoryTV
		}
	}
	return cat, id
}
