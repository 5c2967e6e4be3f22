// Package torname lexes raw release names into their structural parts:
// category, title, localized subtitle, season/episode tags, year and the
// technical tags release groups append. It is a pure function of its input
// and performs no I/O.
package torname

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Tokens is the lexer's view of one release name.
type Tokens struct {
	Title    string // latin-script title
	Subtitle string // localized (CJK) title when the name carries one
	Category string // "movie", "tv" or "" when undecidable
	Season   string // normalized "S01" form
	Episode  string // normalized "E06" form
	Year     int

	Resolution string
	Source     string
	VideoCodec string
	AudioCodec string
	Group      string
}

var (
	extensionPattern = regexp.MustCompile(`(?i)\.(mkv|mp4|m4v|avi|mov|mpg|mpeg|ts|m2ts|wmv|iso|rmvb)$`)

	cjkRunPattern = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}][\p{Han}\p{Hiragana}\p{Katakana}0-9：《》、·，！？\s]*`)

	seasonEpisodePattern = regexp.MustCompile(`(?i)\bS(\d{1,2})\s*(?:E(\d{1,4}))?\b`)
	seasonWordPattern    = regexp.MustCompile(`(?i)\bSeason[\s._]*(\d{1,2})\b`)
	episodeOnlyPattern   = regexp.MustCompile(`(?i)\bEP?(\d{1,4})\b`)
	yearPattern          = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

	resolutionPattern = regexp.MustCompile(`(?i)\b(\d{3,4}[pi]|4K|UHD)\b`)
	sourcePattern     = regexp.MustCompile(`(?i)\b(Blu-?Ray|BD(?:Rip)?|WEB-?DL|WEB-?Rip|HDTV|DVD(?:Rip)?|Remux|HDRip|CAM|TS)\b`)
	videoCodecPattern = regexp.MustCompile(`(?i)\b(x26[45]|[Hh]\.?26[45]|HEVC|AVC|AV1|XviD|VC-?1|MPEG-?2)\b`)
	audioCodecPattern = regexp.MustCompile(`(?i)\b(AAC(?:2[.\s]0)?|AC-?3|E-?AC-?3|DDP?(?:[.\s]?[257][.\s][01])?|DTS(?:-HD)?(?:[.\s]?MA)?|TrueHD|Atmos|FLAC|LPCM|MP3|OPUS)\b`)
	groupPattern      = regexp.MustCompile(`-([A-Za-z0-9@]+)$`)

	bracketTagPattern = regexp.MustCompile(`\[[^\]]*\]`)
	spaceRunPattern   = regexp.MustCompile(`\s{2,}`)
)

// Tokenize splits a raw release name into Tokens. A name with no recognizable
// latin title and no localized subtitle yields a Tokens value with both title
// fields empty; deciding whether that is fatal is the caller's business.
func Tokenize(name string) Tokens {
	var t Tokens

	work := extensionPattern.ReplaceAllString(strings.TrimSpace(name), "")

	// Pull out the localized title before separator normalization so the
	// full-width punctuation inside it survives intact.
	work = extractSubtitle(work, &t)

	// Release names use dots and underscores as word separators.
	work = strings.NewReplacer(".", " ", "_", " ").Replace(work)
	work = bracketTagPattern.ReplaceAllString(work, " ")
	work = spaceRunPattern.ReplaceAllString(work, " ")
	work = strings.TrimSpace(work)

	titleEnd := len(work)
	cut := func(loc []int) {
		if loc != nil && loc[0] < titleEnd {
			titleEnd = loc[0]
		}
	}

	if m := seasonEpisodePattern.FindStringSubmatchIndex(work); m != nil {
		season := work[m[2]:m[3]]
		t.Season = fmt.Sprintf("S%02d", atoi(season))
		if m[4] >= 0 {
			t.Episode = fmt.Sprintf("E%02d", atoi(work[m[4]:m[5]]))
		}
		cut(m)
	} else if m := seasonWordPattern.FindStringSubmatchIndex(work); m != nil {
		t.Season = fmt.Sprintf("S%02d", atoi(work[m[2]:m[3]]))
		cut(m)
	} else if m := episodeOnlyPattern.FindStringSubmatchIndex(work); m != nil {
		t.Episode = fmt.Sprintf("E%02d", atoi(work[m[2]:m[3]]))
		cut(m)
	}

	// The year is usually the last plausible four-digit group; one at the
	// very start of the name is part of the title ("2001 A Space Odyssey").
	if years := yearPattern.FindAllStringIndex(work, -1); len(years) > 0 {
		last := years[len(years)-1]
		if last[0] > 0 {
			t.Year = atoi(work[last[0]:last[1]])
			cut(last)
		}
	}

	if m := resolutionPattern.FindStringIndex(work); m != nil {
		t.Resolution = work[m[0]:m[1]]
		cut(m)
	}
	if m := sourcePattern.FindStringIndex(work); m != nil {
		t.Source = work[m[0]:m[1]]
		cut(m)
	}
	if m := videoCodecPattern.FindStringIndex(work); m != nil {
		t.VideoCodec = work[m[0]:m[1]]
		cut(m)
	}
	if m := audioCodecPattern.FindStringIndex(work); m != nil {
		t.AudioCodec = work[m[0]:m[1]]
		cut(m)
	}
	if m := groupPattern.FindStringSubmatch(work); m != nil {
		t.Group = m[1]
	}

	t.Title = strings.Trim(strings.TrimSpace(work[:titleEnd]), "-–[]() ")
	t.Title = spaceRunPattern.ReplaceAllString(t.Title, " ")

	t.Category = detectCategory(t)
	return t
}

// extractSubtitle removes CJK runs from the name, keeping the longest run as
// the localized subtitle.
func extractSubtitle(work string, t *Tokens) string {
	runs := cjkRunPattern.FindAllString(work, -1)
	best := ""
	for _, run := range runs {
		run = strings.TrimSpace(run)
		if len(run) > len(best) {
			best = run
		}
	}
	if best == "" {
		return work
	}
	t.Subtitle = best
	return strings.TrimSpace(cjkRunPattern.ReplaceAllString(work, " "))
}

// detectCategory infers the category from the structural tags alone. Season
// or episode markers are a TV signal; a year together with rip metadata is a
// movie signal. Anything else stays undecided.
func detectCategory(t Tokens) string {
	if t.Season != "" || t.Episode != "" {
		return "tv"
	}
	if t.Year > 0 && (t.Resolution != "" || t.Source != "") {
		return "movie"
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
