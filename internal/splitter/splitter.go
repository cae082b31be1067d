// Package splitter decomposes raw markdown into typed blocks: the unit of
// identity, retrieval and editing for the whole engine.
package splitter

import (
	"strings"

	"github.com/google/uuid"

	"reviso/internal/domain/models"
	"reviso/internal/markdown"
)

// OrderStride is the gap between consecutive order indices, leaving room for
// future in-between inserts without a full reindex.
const OrderStride = 10

// Block is one split unit before persistence. IDs are assigned here so
// heading parent links can be wired during the walk.
type Block struct {
	BlockID              uuid.UUID
	BlockType            models.BlockType
	HeadingLevel         *int
	ContentMD            string
	PlainText            string
	ContentHash          string
	OrderIndex           int64
	ParentHeadingBlockID *uuid.UUID
}

// Splitter splits markdown documents into blocks. Paragraphs longer than
// maxSize are split at sentence boundaries.
type Splitter struct {
	minSize    int
	targetSize int
	maxSize    int
}

// New creates a splitter with the given size bounds (in characters).
func New(minSize, targetSize, maxSize int) *Splitter {
	return &Splitter{
		minSize:    minSize,
		targetSize: targetSize,
		maxSize:    maxSize,
	}
}

// headingFrame is one open heading on the ancestry stack.
type headingFrame struct {
	level int
	id    uuid.UUID
}

// Split decomposes a markdown document into ordered blocks. Empty input
// yields no blocks.
func (s *Splitter) Split(doc string) []Block {
	lines := strings.Split(doc, "\n")
	var blocks []Block
	var stack []headingFrame

	i := 0
	for i < len(lines) {
		line := lines[i]

		if level, _ := markdown.ExtractHeading(line); level > 0 {
			// Close same-or-deeper sections first so the new heading parents
			// to its nearest strictly shallower ancestor.
			stack = popHeadings(stack, level)
			block := newBlock(models.BlockTypeHeading, line, stack)
			block.HeadingLevel = &level
			blocks = append(blocks, block)
			stack = append(stack, headingFrame{level: level, id: block.BlockID})
			i++
			continue
		}

		if markdown.IsCodeFence(line) {
			var code []string
			code, i = collectCode(lines, i)
			blocks = append(blocks, newBlock(models.BlockTypeCode, strings.Join(code, "\n"), stack))
			continue
		}

		if markdown.IsTableRow(line) {
			var table []string
			table, i = collectWhile(lines, i, markdown.IsTableRow)
			blocks = append(blocks, newBlock(models.BlockTypeTable, strings.Join(table, "\n"), stack))
			continue
		}

		if markdown.IsListItem(line) {
			var list []string
			list, i = collectList(lines, i)
			blocks = append(blocks, newBlock(models.BlockTypeList, strings.Join(list, "\n"), stack))
			continue
		}

		if strings.TrimSpace(line) != "" {
			var para []string
			para, i = collectParagraph(lines, i)
			blocks = append(blocks, s.splitParagraph(strings.Join(para, "\n"), stack)...)
			continue
		}

		i++
	}

	for idx := range blocks {
		blocks[idx].OrderIndex = int64(idx) * OrderStride
	}
	return blocks
}

// newBlock derives plain text and hash from the content and links the block
// to the innermost open heading.
func newBlock(blockType models.BlockType, content string, stack []headingFrame) Block {
	var parent *uuid.UUID
	if len(stack) > 0 {
		id := stack[len(stack)-1].id
		parent = &id
	}
	return Block{
		BlockID:              uuid.New(),
		BlockType:            blockType,
		ContentMD:            content,
		PlainText:            markdown.Strip(content),
		ContentHash:          markdown.HashContent(content),
		ParentHeadingBlockID: parent,
	}
}

// splitParagraph emits the paragraph whole when it fits, otherwise packs
// sentences greedily up to maxSize. A single sentence longer than maxSize is
// emitted as its own block rather than cut mid-sentence.
func (s *Splitter) splitParagraph(text string, stack []headingFrame) []Block {
	if len(text) <= s.maxSize {
		return []Block{newBlock(models.BlockTypeParagraph, text, stack)}
	}

	sentences := markdown.SplitSentences(text)
	var blocks []Block
	var chunk []string
	length := 0

	for _, sentence := range sentences {
		if length+len(sentence) > s.maxSize && len(chunk) > 0 {
			blocks = append(blocks, newBlock(models.BlockTypeParagraph, strings.Join(chunk, ""), stack))
			chunk = []string{sentence}
			length = len(sentence)
		} else {
			chunk = append(chunk, sentence)
			length += len(sentence)
		}
	}
	if len(chunk) > 0 {
		blocks = append(blocks, newBlock(models.BlockTypeParagraph, strings.Join(chunk, ""), stack))
	}
	return blocks
}

// popHeadings drops frames at the same or deeper level than the incoming one.
func popHeadings(stack []headingFrame, level int) []headingFrame {
	for len(stack) > 0 && stack[len(stack)-1].level >= level {
		stack = stack[:len(stack)-1]
	}
	return stack
}

// collectCode gathers a fenced block including both fence lines. An
// unterminated fence runs to end of input.
func collectCode(lines []string, start int) ([]string, int) {
	code := []string{lines[start]}
	i := start + 1
	for i < len(lines) {
		code = append(code, lines[i])
		if markdown.IsCodeFence(lines[i]) {
			i++
			break
		}
		i++
	}
	return code, i
}

// collectList gathers list items plus their two-space-indented continuations.
func collectList(lines []string, start int) ([]string, int) {
	var list []string
	i := start
	for i < len(lines) {
		line := lines[i]
		continuation := strings.TrimSpace(line) != "" && strings.HasPrefix(line, "  ")
		if !markdown.IsListItem(line) && !continuation {
			break
		}
		list = append(list, line)
		i++
	}
	return list, i
}

// collectParagraph gathers consecutive plain lines until a blank line or a
// structural line ends the paragraph.
func collectParagraph(lines []string, start int) ([]string, int) {
	var para []string
	i := start
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			break
		}
		if level, _ := markdown.ExtractHeading(line); level > 0 {
			break
		}
		if markdown.IsCodeFence(line) || markdown.IsListItem(line) || markdown.IsTableRow(line) {
			break
		}
		para = append(para, line)
		i++
	}
	return para, i
}

func collectWhile(lines []string, start int, match func(string) bool) ([]string, int) {
	var out []string
	i := start
	for i < len(lines) && match(lines[i]) {
		out = append(out, lines[i])
		i++
	}
	return out, i
}
