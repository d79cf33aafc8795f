package ingestion

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Split slices text into overlapping chunks of roughly size characters,
// preferring to cut at sentence boundaries. A chunk's last overlap characters
// are repeated at the start of the next chunk so an answer spanning a cut
// still appears whole in at least one chunk. Chunks shorter than min after
// trimming are dropped.
func Split(text string, size, overlap, min int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else if b := lastSentenceEnd(text[start:end]); b > size/2 {
			// Cut at the last sentence boundary in the window, unless that
			// would make the chunk degenerately short.
			end = start + b
		}

		chunk := strings.TrimSpace(text[start:end])
		if len(chunk) >= min {
			chunks = append(chunks, chunk)
		}

		if end == len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSentenceEnd returns the index just past the last sentence terminator
// in s, or -1 if s contains none.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	return -1
}

var (
	// nonContentRe matches whole elements whose text is never user-facing
	// prose. (?s) so the match spans newlines.
	nonContentRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>|<style[^>]*>.*?</style>|<noscript[^>]*>.*?</noscript>`)
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe      = regexp.MustCompile(`\s+`)
	titleRe      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// extractText strips markup from an HTML page and returns its visible text
// with whitespace collapsed. Plain-text input passes through unchanged apart
// from whitespace normalisation.
func extractText(page string) string {
	s := nonContentRe.ReplaceAllString(page, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// extractTitle returns the content of the page's <title> element, or "".
func extractTitle(page string) string {
	m := titleRe.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

// titleFromURL derives a readable fallback title from the last URL path
// segment ("/pricing-plans" → "pricing plans"), or the hostname for a root
// URL.
func titleFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return parsed.Hostname()
	}
	last = strings.ReplaceAll(last, "-", " ")
	last = strings.ReplaceAll(last, "_", " ")
	return last
}
