package resolver

import (
	"regexp"
	"strings"
)

// Title cleaning is an ordered substitution pipeline: each rule operates on
// the output of the one before it, so the order of this slice is load-bearing.
var cleanRules = []*regexp.Regexp{
	// Broadcaster / call-sign prefixes.
	regexp.MustCompile(`(?i)^(Jade|\w{2,3}TV)\s+`),
	// Trailing edition and collection markers.
	regexp.MustCompile(`(?i)\b(Extended|Anthology|Trilogy|Quadrilogy|Tetralogy|Collections?)\s*$`),
	// Technical markers that slipped into the title.
	regexp.MustCompile(`(?i)\b(HD|S\d+|E\d+|V\d+|4K|DVD|CORRECTED|UnCut|SP)\s*$`),
	// Leading bracket and genre-label noise.
	regexp.MustCompile(`(?i)^\s*(剧集|BBC：?|TLOTR|Jade|Documentary|【[^】]*】)`),
	// Trailing N-part / complete-set / region-release noise.
	regexp.MustCompile(`(?i)(\d+部曲|全\d+集.*|原盘|系列|\s[^\s]*压制.*)\s*$`),
	// Trailing dual-language / episodes-complete noise.
	regexp.MustCompile(`(?i)(国粤双语|\(?[\p{Han}\w]+版|\d+集全).*$`),
	// Trailing "The Complete Series" / "The Movie" suffixes.
	regexp.MustCompile(`(?i)(The[\s.]*(Complete\w*|Drama\w*|Animate\w*)?[\s.]*Series|The\s*Movie)\s*$`),
	// An embedded season token anywhere in the string.
	regexp.MustCompile(`(?i)\b(Season\s?\d+)\b`),
}

// Longest numerals first so "VIII" is not consumed as "V"+"III".
var romanNumerals = []struct {
	roman  *regexp.Regexp
	arabic string
}{
	{regexp.MustCompile(`(?i)\bXVI\b`), "16"},
	{regexp.MustCompile(`(?i)\bXV\b`), "15"},
	{regexp.MustCompile(`(?i)\bXIV\b`), "14"},
	{regexp.MustCompile(`(?i)\bXIII\b`), "13"},
	{regexp.MustCompile(`(?i)\bXII\b`), "12"},
	{regexp.MustCompile(`(?i)\bXI\b`), "11"},
	{regexp.MustCompile(`(?i)\bIX\b`), "9"},
	{regexp.MustCompile(`(?i)\bVIII\b`), "8"},
	{regexp.MustCompile(`(?i)\bVII\b`), "7"},
	{regexp.MustCompile(`(?i)\bVI\b`), "6"},
	{regexp.MustCompile(`(?i)\bV\b`), "5"},
	{regexp.MustCompile(`(?i)\bIV\b`), "4"},
	{regexp.MustCompile(`(?i)\bIII\b`), "3"},
	{regexp.MustCompile(`(?i)\bII\b`), "2"},
}

// CleanTitle strips release noise from a parsed title, producing the search
// key used against both the catalog patterns and the provider. It can return
// an empty string when the title was pure noise; callers must treat empty as
// "no usable term". CleanTitle is idempotent.
func CleanTitle(title string) string {
	// Stacked suffixes ("Foo Trilogy Extended") need more than one sweep, so
	// the pipeline runs until it stops changing the string.
	for range [4]struct{}{} {
		prev := title
		for _, rule := range cleanRules {
			title = rule.ReplaceAllString(title, "")
		}
		title = strings.TrimSpace(replaceRomanNumerals(title))
		if title == prev {
			break
		}
	}
	return title
}

// replaceRomanNumerals rewrites II..XVI into arabic digits so "Part II" and
// "Part 2" releases produce the same search key.
func replaceRomanNumerals(title string) string {
	for _, n := range romanNumerals {
		title = n.roman.ReplaceAllString(title, n.arabic)
	}
	return title
}

var (
	secondaryColonSplit = "："
	guillemetPattern    = regexp.MustCompile(`《([^》]+)》`)
	leadingRunPattern   = regexp.MustCompile(`^(.+?)(\d+)`)
	liveActionMarker    = "真人版"
)

// SecondaryTitle derives an alternate, shorter search key from a cleaned
// localized subtitle. It tries the extraction heuristics in order and returns
// the first that produces something, else the empty string.
func SecondaryTitle(subtitle string) string {
	if subtitle == "" {
		return ""
	}
	// Text after a full-width colon: everything before it is a franchise
	// prefix, the tail is the discriminating part.
	if idx := strings.Index(subtitle, secondaryColonSplit); idx >= 0 {
		if tail := strings.TrimSpace(subtitle[idx+len(secondaryColonSplit):]); tail != "" {
			return tail
		}
	}
	// A work title quoted in full-width guillemets.
	if m := guillemetPattern.FindStringSubmatch(subtitle); m != nil {
		return m[1]
	}
	// A leading word-run before trailing digits ("名侦探柯南123" -> "名侦探柯南").
	if m := leadingRunPattern.FindStringSubmatch(subtitle); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Text before a live-action adaptation marker.
	if idx := strings.Index(subtitle, liveActionMarker); idx >= 0 {
		return strings.TrimSpace(subtitle[:idx])
	}
	return ""
}
