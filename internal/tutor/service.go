// Package tutor orchestrates the retrieval-augmented answer pipeline:
// extract, chunk, embed, retrieve, prompt.
package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/alokproc/geotutor/internal/document"
	"github.com/alokproc/geotutor/internal/llm"
	"github.com/alokproc/geotutor/internal/observability"
	"github.com/alokproc/geotutor/internal/vector"
)

// Options tunes the pipeline. Zero values fall back to the defaults the
// curriculum was tuned with.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Temperature  float64
	MaxTokens    int
	Topics       []string
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = document.DefaultChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = document.DefaultChunkOverlap
	}
	if o.TopK <= 0 {
		o.TopK = 4
	}
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	if len(o.Topics) == 0 {
		o.Topics = DefaultTopics
	}
	return o
}

// Service answers curriculum questions with retrieval-augmented generation.
type Service struct {
	provider  llm.Provider
	repo      vector.Repository
	embedder  *vector.Embedder
	extractor *document.Extractor
	splitter  *document.Splitter
	opts      Options
	log       *slog.Logger
}

// New creates a Service. provider handles both embeddings and completions;
// use WithEmbedProvider when a different provider serves embeddings.
func New(provider llm.Provider, repo vector.Repository, opts Options, log *slog.Logger) *Service {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider:  provider,
		repo:      repo,
		embedder:  vector.NewEmbedder(provider, repo),
		extractor: document.NewExtractor(),
		splitter:  document.NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		opts:      opts,
		log:       log,
	}
}

// WithEmbedProvider routes embedding calls through a dedicated provider.
// Chat completions keep using the provider passed to New.
func (s *Service) WithEmbedProvider(p llm.Provider) *Service {
	if p != nil {
		s.embedder = vector.NewEmbedder(p, s.repo)
	}
	return s
}

// IngestReport summarizes a completed ingest run.
type IngestReport struct {
	Source   string        `json:"source"`
	Pages    int           `json:"pages"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration_ms"`
}

// Ingest extracts a PDF, chunks it, embeds the chunks and upserts them into
// the vector store. progress (optional) is called with the number of chunks
// indexed so far.
func (s *Service) Ingest(ctx context.Context, pdfPath string, progress func(done, total int)) (*IngestReport, error) {
	ctx, span := observability.StartIngestSpan(ctx, pdfPath)
	defer span.End()

	start := time.Now()

	pages, err := s.extractor.Extract(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	s.log.Info("extracted pdf", "path", pdfPath, "pages", len(pages))

	chunks := s.splitter.SplitPages(pdfPath, pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %s", pdfPath)
	}
	s.log.Info("split document", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	metadata := make([]map[string]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		metadata[i] = map[string]string{
			"source":     c.Source,
			"chunk":      strconv.Itoa(c.Index),
			"page_start": strconv.Itoa(c.PageStart),
			"page_end":   strconv.Itoa(c.PageEnd),
		}
	}

	err = s.embedder.IndexTexts(ctx, texts, metadata, func(done int) {
		if progress != nil {
			progress(done, len(chunks))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}

	report := &IngestReport{
		Source:   pdfPath,
		Pages:    len(pages),
		Chunks:   len(chunks),
		Duration: time.Since(start),
	}
	observability.RecordIngest(span, report.Pages, report.Chunks)
	s.log.Info("ingest complete", "chunks", report.Chunks, "duration", report.Duration)
	return report, nil
}

// Source describes where part of an answer came from.
type Source struct {
	PageStart int     `json:"page_start,omitempty"`
	PageEnd   int     `json:"page_end,omitempty"`
	Score     float32 `json:"score"`
	Snippet   string  `json:"snippet"`
}

// Answer is the result of one question.
type Answer struct {
	Question     string        `json:"question"`
	Text         string        `json:"answer"`
	Grounded     bool          `json:"grounded"`
	Sources      []Source      `json:"sources,omitempty"`
	Model        string        `json:"model,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration_ms"`
}

// Ask retrieves context for the question and asks the model for an answer.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	return s.ask(ctx, question, nil)
}

// AskStream behaves like Ask but delivers content deltas through fn when
// the provider supports streaming; otherwise the full answer arrives in a
// single callback.
func (s *Service) AskStream(ctx context.Context, question string, fn func(delta string) error) (*Answer, error) {
	return s.ask(ctx, question, fn)
}

func (s *Service) ask(ctx context.Context, question string, stream func(delta string) error) (*Answer, error) {
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}
	if s.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	start := time.Now()

	results, err := s.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	prompt := &llm.Prompt{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserPrompt(buildContext(results), question)},
		},
	}
	opts := &llm.RequestOptions{
		Temperature: llm.Float(s.opts.Temperature),
		MaxTokens:   llm.Int(s.opts.MaxTokens),
	}

	ctx, span := observability.StartLLMSpan(ctx, s.provider.Name(), "")
	var resp *llm.Response
	if stream != nil {
		if streamer, ok := s.provider.(llm.Streamer); ok {
			resp, err = streamer.CompleteStream(ctx, prompt, opts, stream)
		} else {
			resp, err = s.provider.Complete(ctx, prompt, opts)
			if err == nil {
				err = stream(llm.StripThinkingTags(resp.Content))
			}
		}
	} else {
		resp, err = s.provider.Complete(ctx, prompt, opts)
	}
	if err != nil {
		span.End()
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(start))
	span.End()

	answer := &Answer{
		Question:     question,
		Text:         llm.StripThinkingTags(resp.Content),
		Grounded:     len(results) > 0,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Duration:     time.Since(start),
	}
	if answer.Grounded {
		answer.Text += "\n\n" + sourceNote
		answer.Sources = sources(results)
	}
	return answer, nil
}

// retrieve embeds the question and searches the store. A missing or empty
// store is not an error: the tutor still answers, just without citations.
func (s *Service) retrieve(ctx context.Context, question string) ([]vector.SearchResult, error) {
	ctx, span := observability.StartRetrievalSpan(ctx, s.opts.TopK)
	defer span.End()

	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err := s.repo.Search(ctx, queryVec, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}
	observability.RecordRetrieval(span, len(results))
	return results, nil
}

func sources(results []vector.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		src := Source{Score: r.Score, Snippet: snippet(r.Content, 160)}
		if v, err := strconv.Atoi(r.Metadata["page_start"]); err == nil {
			src.PageStart = v
		}
		if v, err := strconv.Atoi(r.Metadata["page_end"]); err == nil {
			src.PageEnd = v
		}
		out = append(out, src)
	}
	return out
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == ' ' {
			return cut[:i] + "…"
		}
	}
	return cut + "…"
}

// Topics returns the curriculum topic suggestions.
func (s *Service) Topics() []string {
	out := make([]string, len(s.opts.Topics))
	copy(out, s.opts.Topics)
	return out
}

// Ready reports whether the store holds indexed curriculum content.
func (s *Service) Ready(ctx context.Context) bool {
	count, err := s.repo.Count(ctx)
	return err == nil && count > 0
}

// StoreCount returns the number of indexed chunks.
func (s *Service) StoreCount(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// ResetStore drops all indexed chunks.
func (s *Service) ResetStore(ctx context.Context) error {
	return s.repo.Reset(ctx)
}

// ProviderName identifies the configured LLM backend, or "none".
func (s *Service) ProviderName() string {
	if s.provider == nil {
		return "none"
	}
	return s.provider.Name()
}
