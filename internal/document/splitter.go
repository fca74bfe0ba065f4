package document

import "strings"

// Default chunking parameters. A 1000-character chunk with 200 characters
// of overlap keeps each retrieved passage self-contained without blowing
// up the prompt budget.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is a retrievable slice of a source document.
type Chunk struct {
	Source    string `json:"source"`
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
}

// Splitter breaks text into chunks of at most chunkSize characters,
// preferring paragraph, line, sentence and word boundaries in that order,
// with consecutive chunks sharing up to overlap characters.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter. Non-positive arguments fall back to the
// defaults; overlap is clamped below chunkSize.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: []string{"\n\n", "\n", ". ", " "},
	}
}

// piece is a boundary-respecting fragment no longer than chunkSize,
// carrying its byte offset in the original text.
type piece struct {
	text string
	off  int
}

// Split chunks text. Every chunk is a verbatim substring of text; Start/End
// are its byte offsets. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := s.fragment(text, 0, s.separators)
	if len(pieces) == 0 {
		return nil
	}

	var chunks []Chunk
	var window []piece
	windowLen := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		start := window[0].off
		last := window[len(window)-1]
		end := last.off + len(last.text)
		body := text[start:end]
		if strings.TrimSpace(body) == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  body,
			Start: start,
			End:   end,
		})
	}

	for _, p := range pieces {
		if windowLen+len(p.text) > s.chunkSize && len(window) > 0 {
			flush()
			// Carry trailing pieces forward as overlap for the next chunk.
			var kept []piece
			keptLen := 0
			for i := len(window) - 1; i >= 0; i-- {
				if keptLen+len(window[i].text) > s.overlap {
					break
				}
				keptLen += len(window[i].text)
				kept = append([]piece{window[i]}, kept...)
			}
			window = kept
			windowLen = keptLen
		}
		window = append(window, p)
		windowLen += len(p.text)
	}
	flush()

	return chunks
}

// fragment recursively splits text into pieces no longer than chunkSize.
// Separators stay attached to the preceding piece so that rejoining
// consecutive pieces reproduces the source text exactly.
func (s *Splitter) fragment(text string, off int, seps []string) []piece {
	if len(text) <= s.chunkSize {
		if text == "" {
			return nil
		}
		return []piece{{text: text, off: off}}
	}

	if len(seps) == 0 {
		// No boundary left: hard-cut on rune boundaries.
		var out []piece
		start := 0
		runLen := 0
		for i, r := range text {
			runLen += len(string(r))
			if runLen >= s.chunkSize {
				end := i + len(string(r))
				out = append(out, piece{text: text[start:end], off: off + start})
				start = end
				runLen = 0
			}
		}
		if start < len(text) {
			out = append(out, piece{text: text[start:], off: off + start})
		}
		return out
	}

	sep := seps[0]
	if !strings.Contains(text, sep) {
		return s.fragment(text, off, seps[1:])
	}

	var out []piece
	rest := text
	restOff := off
	for {
		idx := strings.Index(rest, sep)
		if idx == -1 {
			out = append(out, s.fragment(rest, restOff, seps[1:])...)
			break
		}
		part := rest[:idx+len(sep)]
		out = append(out, s.fragment(part, restOff, seps[1:])...)
		rest = rest[idx+len(sep):]
		restOff += idx + len(sep)
		if rest == "" {
			break
		}
	}
	return out
}

// SplitPages extracts, joins and chunks a page set, attributing each chunk
// to the page range it spans.
func (s *Splitter) SplitPages(source string, pages []Page) []Chunk {
	text, offsets := JoinPages(pages)
	chunks := s.Split(text)
	for i := range chunks {
		chunks[i].Source = source
		chunks[i].PageStart = PageAt(offsets, chunks[i].Start)
		if chunks[i].End > 0 {
			chunks[i].PageEnd = PageAt(offsets, chunks[i].End-1)
		}
	}
	return chunks
}
