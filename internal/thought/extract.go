// Package thought separates model reasoning from the displayed answer.
//
// Assistant content may embed a reasoning segment between literal markers.
// The segment is never stored apart from the content; callers recompute it
// from the current content every time they need it.
package thought

import "strings"

// Delimiter is one opening/closing marker pair.
type Delimiter struct {
	Open  string
	Close string
}

// Delimiters are tried in this order.
var Delimiters = []Delimiter{
	{Open: "<think>", Close: "</think>"},
	{Open: "<thinking>", Close: "</thinking>"},
	{Open: "<thought>", Close: "</thought>"},
	{Open: "<reasoning>", Close: "</reasoning>"},
}

// Open and Close are the markers streams use when they inline reasoning
// deltas into the content.
var (
	Open  = Delimiters[0].Open
	Close = Delimiters[0].Close
)

// Result is the split view of a piece of assistant content.
type Result struct {
	// Thought is the reasoning text, empty when none was found.
	Thought string
	// Content is what remains to display once reasoning is removed.
	Content string
	// Found reports whether any marker was recognised.
	Found bool
	// InProgress is set when an opening marker has no closing marker yet.
	InProgress bool
}

// Extract splits content into thought and answer.
//
// Complete marker pairs are removed with their enclosed text becoming the
// thought. An opening marker with no closing marker turns the rest of the
// content into an in-progress thought. Content without markers passes
// through untouched. The returned Content holds no markers, so Extract of
// its own Content is a fixed point.
func Extract(content string) Result {
	res := Result{Content: content}
	var thoughts []string
	for {
		next, found, ok := extractOnce(res.Content)
		if !ok {
			break
		}
		res.Found = true
		if found.text != "" {
			thoughts = append(thoughts, found.text)
		}
		if found.open {
			res.InProgress = true
		}
		res.Content = next
	}
	if !res.Found {
		return res
	}
	res.Thought = strings.Join(thoughts, "\n\n")
	res.Content = strings.TrimSpace(res.Content)
	return res
}

type segment struct {
	text string
	open bool
}

// extractOnce removes the first segment of the highest priority delimiter
// whose opening marker occurs in content.
func extractOnce(content string) (string, segment, bool) {
	for _, d := range Delimiters {
		start := strings.Index(content, d.Open)
		if start < 0 {
			continue
		}
		bodyStart := start + len(d.Open)
		end := strings.Index(content[bodyStart:], d.Close)
		if end < 0 {
			seg := segment{text: strings.TrimSpace(content[bodyStart:]), open: true}
			return content[:start], seg, true
		}
		end += bodyStart
		seg := segment{text: strings.TrimSpace(content[bodyStart:end])}
		return content[:start] + content[end+len(d.Close):], seg, true
	}
	return content, segment{}, false
}
