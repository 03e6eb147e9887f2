// Package textbudget manages document length against model token budgets:
// heuristic token estimation, paragraph-aligned chunking, AI-assisted
// summarization, and a structural fallback that guarantees forward progress
// when every AI-assisted step fails.
package textbudget

import (
	"context"
	"fmt"
	"strings"

	"github.com/maplecourt/legalai/internal/logging"
)

// wordsPerToken is the heuristic ratio used by EstimateTokens: one model
// token covers roughly 0.75 English words, so a text costs about
// words/0.75 tokens. It is a gate, not an exact accounting.
const wordsPerToken = 0.75

// CompleteFunc issues a single plain-text completion. Summarize and
// ProcessForBudget use it so they stay decoupled from any one provider.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// EstimateTokens approximates the model-token cost of text from its word
// count, dividing by wordsPerToken (a token is shorter than a word, so the
// estimate exceeds the word count). Deterministic, no side effects.
func EstimateTokens(text string) int {
	words := WordCount(text)
	if words == 0 {
		return 0
	}
	return int(float64(words)/wordsPerToken) + 1
}

// Chunk splits text on blank-line paragraph boundaries into at most maxChunks
// chunks. If the paragraph count is at most maxChunks, each paragraph is its
// own chunk; otherwise paragraphs are grouped evenly across exactly maxChunks
// buckets, preserving order and never splitting a paragraph.
func Chunk(text string, maxChunks int) []string {
	if maxChunks < 1 {
		maxChunks = 1
	}
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}
	if len(paragraphs) <= maxChunks {
		return paragraphs
	}

	chunks := make([]string, 0, maxChunks)
	base := len(paragraphs) / maxChunks
	extra := len(paragraphs) % maxChunks
	idx := 0
	for i := 0; i < maxChunks; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks = append(chunks, strings.Join(paragraphs[idx:idx+size], "\n\n"))
		idx += size
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(p))
		}
	}
	return paragraphs
}

// Summarize compresses text to approximately targetWords words using the
// given completion function. Text already at or under the target is returned
// unchanged. On provider failure the text is truncated with an explicit
// marker instead; Summarize never fails.
func Summarize(ctx context.Context, complete CompleteFunc, text string, targetWords int) string {
	if targetWords <= 0 || WordCount(text) <= targetWords {
		return text
	}

	prompt := fmt.Sprintf(
		"Summarize the following legal text in approximately %d words. "+
			"Preserve all obligations, deadlines, monetary amounts, dates, and defined terms. "+
			"Do not add commentary.\n\n%s", targetWords, text)

	summary, err := complete(ctx, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			logging.FromContext(ctx).Warn("summarization failed, truncating", "error", err.Error())
		}
		return truncateWords(text, targetWords)
	}
	return summary
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "\n[... truncated ...]"
}

// ProcessForBudget fits text to maxTokens using a three-tier policy:
// unchanged when comfortably under budget, chunked-and-summarized when
// moderately over, and aggressively summarized with a warning banner when far
// over. Any unexpected failure degrades to structural extraction so the
// caller always receives usable text.
func ProcessForBudget(ctx context.Context, complete CompleteFunc, text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	est := EstimateTokens(text)
	if float64(est) <= 0.85*float64(maxTokens) {
		return text
	}

	if float64(est) <= 1.3*float64(maxTokens) {
		out, err := summarizeInChunks(ctx, complete, text, int(0.8*float64(maxTokens)))
		if err != nil {
			return StructuralExtract(text)
		}
		return "[Note: this document was condensed to fit processing limits. " +
			"Key sections were extracted and summarized.]\n\n" + out
	}

	out, err := summarizeInChunks(ctx, complete, text, int(0.6*float64(maxTokens)))
	if err != nil {
		return StructuralExtract(text)
	}
	return "[Warning: this document substantially exceeds processing limits. " +
		"The following is a partial summary; portions of the original were omitted.]\n\n" + out
}

// summarizeInChunks splits text into 4 chunks and summarizes each to an equal
// share of budgetTokens, concatenating with section markers.
func summarizeInChunks(ctx context.Context, complete CompleteFunc, text string, budgetTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chunks := Chunk(text, 4)
	if len(chunks) == 0 {
		return "", fmt.Errorf("no paragraphs in text")
	}

	budgetWords := int(float64(budgetTokens) * wordsPerToken)
	perChunk := budgetWords / len(chunks)
	if perChunk < 1 {
		perChunk = 1
	}

	var b strings.Builder
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Section %d ---\n", i+1)
		b.WriteString(Summarize(ctx, complete, chunk, perChunk))
	}
	return b.String(), nil
}

// StructuralExtract keeps the head, a middle slice, and the tail of a
// document, joined with omission markers. It requires no provider call, so it
// succeeds even when every AI-assisted step has failed.
func StructuralExtract(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 10 {
		return text
	}

	// Keep roughly half the document: 40% head, 20% middle, 40% tail of the
	// reduced line count.
	keep := len(lines) / 2
	head := keep * 40 / 100
	mid := keep * 20 / 100
	tail := keep - head - mid
	if head < 1 {
		head = 1
	}
	if mid < 1 {
		mid = 1
	}
	if tail < 1 {
		tail = 1
	}

	midStart := len(lines)/2 - mid/2
	parts := []string{
		strings.Join(lines[:head], "\n"),
		"[omitted]",
		strings.Join(lines[midStart:midStart+mid], "\n"),
		"[omitted]",
		strings.Join(lines[len(lines)-tail:], "\n"),
	}
	return strings.Join(parts, "\n")
}
