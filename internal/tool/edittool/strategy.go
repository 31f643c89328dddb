// Package edittool implements the single find-and-replace edit tool and
// the strategy ladder it shares with multiedittool. Grounded on
// original_source/crates/code-mesh-core/src/tool/edit.rs for the
// four-strategy semantics.
package edittool

import (
	"strings"
)

// Strategy names a matching strategy in the ladder order.
type Strategy string

const (
	StrategyExact                 Strategy = "exact"
	StrategyLineTrimmed           Strategy = "line_trimmed"
	StrategyWhitespaceNormalized  Strategy = "whitespace_normalized"
	StrategyIndentationFlexible   Strategy = "indentation_flexible"
)

// Match describes where and how a strategy found old in content.
type Match struct {
	Strategy Strategy
	Start    int
	End      int
}

// ladder lists the four strategies in the fixed order spec §4.5 requires
// them tried: exact match first, then progressively more forgiving ones.
var ladder = []struct {
	name Strategy
	try  func(content, oldText, newText string, replaceAll bool) (string, int, bool)
}{
	{StrategyExact, applyExact},
	{StrategyLineTrimmed, applyLineTrimmed},
	{StrategyWhitespaceNormalized, applyWhitespaceNormalized},
	{StrategyIndentationFlexible, applyIndentationFlexible},
}

// Apply runs the ladder against content, replacing the first
// (or every, if replaceAll) match with a strategy-appropriate
// substitution of newText. It returns the resulting content, the
// strategy that succeeded, and the number of replacements made.
func Apply(content, oldText, newText string, replaceAll bool) (result string, strategy Strategy, count int, ok bool) {
	for _, step := range ladder {
		if out, n, matched := step.try(content, oldText, newText, replaceAll); matched && n > 0 {
			return out, step.name, n, true
		}
	}
	return content, "", 0, false
}

// applyExact performs literal substring replacement.
func applyExact(content, oldText, newText string, replaceAll bool) (string, int, bool) {
	if oldText == "" {
		return content, 0, false
	}
	if !strings.Contains(content, oldText) {
		return content, 0, false
	}
	if replaceAll {
		n := strings.Count(content, oldText)
		return strings.ReplaceAll(content, oldText, newText), n, true
	}
	return strings.Replace(content, oldText, newText, 1), 1, true
}

// applyLineTrimmed compares old and target line-by-line after trimming
// each line's surrounding whitespace, preserving the target's leading
// whitespace when splicing in the replacement.
func applyLineTrimmed(content, oldText, newText string, replaceAll bool) (string, int, bool) {
	oldLines := strings.Split(oldText, "\n")
	contentLines := strings.Split(content, "\n")
	if len(oldLines) == 0 {
		return content, 0, false
	}

	trimmedOld := make([]string, len(oldLines))
	for i, l := range oldLines {
		trimmedOld[i] = strings.TrimSpace(l)
	}

	var starts []int
	for i := 0; i+len(oldLines) <= len(contentLines); i++ {
		match := true
		for j, tl := range trimmedOld {
			if strings.TrimSpace(contentLines[i+j]) != tl {
				match = false
				break
			}
		}
		if match {
			starts = append(starts, i)
			if !replaceAll {
				break
			}
		}
	}
	if len(starts) == 0 {
		return content, 0, false
	}

	newLines := strings.Split(newText, "\n")
	var out []string
	cursor := 0
	for _, start := range starts {
		out = append(out, contentLines[cursor:start]...)
		leading := leadingWhitespace(contentLines[start])
		for i, nl := range newLines {
			if i == 0 {
				out = append(out, leading+strings.TrimLeft(nl, " \t"))
			} else {
				out = append(out, nl)
			}
		}
		cursor = start + len(oldLines)
	}
	out = append(out, contentLines[cursor:]...)
	return strings.Join(out, "\n"), len(starts), true
}

// applyWhitespaceNormalized collapses runs of whitespace to single spaces
// on both sides before locating the match, then splices using the
// original content's offsets.
func applyWhitespaceNormalized(content, oldText, newText string, replaceAll bool) (string, int, bool) {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	normOld := normalize(oldText)
	if normOld == "" {
		return content, 0, false
	}

	// Slide a window of original-content substrings, normalizing each
	// candidate and comparing; this is O(n*m) but bounded by realistic
	// tool-call sizes (single-file edits).
	runes := []rune(content)
	n := len(runes)
	var matches []Match
	i := 0
	for i < n {
		best := -1
		for end := i + 1; end <= n; end++ {
			candidate := string(runes[i:end])
			if normalize(candidate) == normOld {
				best = end
			} else if len(candidate) > len(oldText)*4+64 {
				break
			}
		}
		if best != -1 {
			matches = append(matches, Match{Start: i, End: best})
			i = best
			if !replaceAll {
				break
			}
			continue
		}
		i++
	}
	if len(matches) == 0 {
		return content, 0, false
	}

	var b strings.Builder
	cursor := 0
	for _, m := range matches {
		b.WriteString(string(runes[cursor:m.Start]))
		b.WriteString(newText)
		cursor = m.End
	}
	b.WriteString(string(runes[cursor:]))
	return b.String(), len(matches), true
}

// applyIndentationFlexible strips the minimum common leading indent from
// oldText, searches anywhere with arbitrary leading indent on the first
// matched line, and reapplies the observed indent to the replacement.
func applyIndentationFlexible(content, oldText, newText string, replaceAll bool) (string, int, bool) {
	oldLines := strings.Split(oldText, "\n")
	strippedOld, commonIndent := stripCommonIndent(oldLines)
	if len(strippedOld) == 0 {
		return content, 0, false
	}

	contentLines := strings.Split(content, "\n")
	newLines := strings.Split(newText, "\n")
	strippedNew, _ := stripCommonIndent(newLines)

	var starts []int
	for i := 0; i+len(strippedOld) <= len(contentLines); i++ {
		observedIndent := leadingWhitespace(contentLines[i])
		match := true
		for j, sl := range strippedOld {
			line := contentLines[i+j]
			if !strings.HasPrefix(line, observedIndent) {
				match = false
				break
			}
			if strings.TrimPrefix(line, observedIndent) != sl {
				match = false
				break
			}
		}
		if match {
			starts = append(starts, i)
			if !replaceAll {
				break
			}
		}
	}
	if len(starts) == 0 {
		return content, 0, false
	}

	var out []string
	cursor := 0
	for _, start := range starts {
		out = append(out, contentLines[cursor:start]...)
		observedIndent := leadingWhitespace(contentLines[start])
		for _, nl := range strippedNew {
			if nl == "" {
				out = append(out, nl)
			} else {
				out = append(out, observedIndent+nl)
			}
		}
		cursor = start + len(strippedOld)
	}
	out = append(out, contentLines[cursor:]...)
	_ = commonIndent
	return strings.Join(out, "\n"), len(starts), true
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

// stripCommonIndent removes the minimum common leading indent across all
// non-blank lines, returning the stripped lines and the indent removed.
func stripCommonIndent(lines []string) ([]string, string) {
	minIndent := -1
	var minStr string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ind := leadingWhitespace(l)
		if minIndent == -1 || len(ind) < minIndent {
			minIndent = len(ind)
			minStr = ind
		}
	}
	if minIndent <= 0 {
		return lines, ""
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.HasPrefix(l, minStr) {
			out[i] = strings.TrimPrefix(l, minStr)
		} else {
			out[i] = strings.TrimLeft(l, " \t")
		}
	}
	return out, minStr
}
