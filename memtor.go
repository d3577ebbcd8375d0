// Package memtor is a record store for short text memories: content plus
// metadata plus a vector embedding, with point CRUD, attribute filtering,
// time-range queries, and two-stage ranked semantic search.
//
// The façade composes four swappable roles behind explicit construction:
// a RecordStore (sqlite, postgres, or in-process memory), an external
// EmbeddingGenerator, a Ranker, and an optional context Extractor for
// conversational exchanges.
package memtor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/memtor/internal/config"
	"github.com/scrypster/memtor/internal/extract"
	"github.com/scrypster/memtor/internal/llm"
	"github.com/scrypster/memtor/internal/search"
	"github.com/scrypster/memtor/internal/storage"
	"github.com/scrypster/memtor/internal/storage/memory"
	"github.com/scrypster/memtor/internal/storage/postgres"
	"github.com/scrypster/memtor/internal/storage/sqlite"
	"github.com/scrypster/memtor/pkg/types"
)

// Sort preferences for Search.
const (
	SortByRelevance = "relevance"
	SortByTimeDesc  = "time_desc"
	SortByTimeAsc   = "time_asc"
)

// DefaultTopK caps search results when the caller does not ask for a
// specific count.
const DefaultTopK = 10

// Memtor is the retrieval façade. It is safe for concurrent use as long as
// the underlying store is; all bundled stores are.
type Memtor struct {
	store     storage.RecordStore
	embedder  llm.EmbeddingGenerator
	ranker    search.Ranker
	extractor extract.Extractor
	topK      int
}

// Option configures a Memtor during construction.
type Option func(*Memtor)

// WithStore sets the record store backend.
func WithStore(store storage.RecordStore) Option {
	return func(m *Memtor) { m.store = store }
}

// WithEmbedder sets the embedding provider. Without one, only vector queries
// and pre-embedded saves work.
func WithEmbedder(embedder llm.EmbeddingGenerator) Option {
	return func(m *Memtor) { m.embedder = embedder }
}

// WithRanker replaces the default two-stage ranker.
func WithRanker(ranker search.Ranker) Option {
	return func(m *Memtor) { m.ranker = ranker }
}

// WithExtractor sets the context extractor used by AddExchange.
func WithExtractor(extractor extract.Extractor) Option {
	return func(m *Memtor) { m.extractor = extractor }
}

// WithTopK sets the default search result cap.
func WithTopK(topK int) Option {
	return func(m *Memtor) { m.topK = topK }
}

// New builds a Memtor from explicit dependencies. Unset roles get defaults:
// an in-process store, the standard two-stage ranker, and no extractor.
func New(opts ...Option) (*Memtor, error) {
	m := &Memtor{
		ranker: search.NewTwoStageRanker(),
		topK:   DefaultTopK,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = memory.NewRecordStore()
	}
	if m.topK <= 0 {
		return nil, fmt.Errorf("memtor: %w: top_k must be positive", types.ErrInvalidArgument)
	}
	return m, nil
}

// NewFromConfig wires a Memtor from configuration: storage engine, embedding
// provider, extraction strategy, and ranking parameters.
func NewFromConfig(cfg *config.Config) (*Memtor, error) {
	var store storage.RecordStore
	var err error
	switch cfg.Storage.Engine {
	case "sqlite", "":
		store, err = sqlite.NewRecordStore(cfg.Storage.Path)
	case "postgres":
		store, err = postgres.NewRecordStore(cfg.Storage.DSN)
	case "memory":
		store = memory.NewRecordStore()
	default:
		return nil, fmt.Errorf("memtor: unsupported storage engine: %q", cfg.Storage.Engine)
	}
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbeddingGenerator(llm.ProviderConfig{
		Provider:          cfg.Embedding.Provider,
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		BaseURL:           cfg.Embedding.BaseURL,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		CacheSize:         cfg.Embedding.CacheSize,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	var extractor extract.Extractor
	if cfg.Extraction.Strategy != "none" {
		var generator llm.TextGenerator
		if cfg.Extraction.Strategy != "echo" {
			generator, err = llm.NewTextGenerator(llm.ProviderConfig{
				Provider: cfg.Extraction.Provider,
				APIKey:   cfg.Extraction.APIKey,
				Model:    cfg.Extraction.Model,
				BaseURL:  cfg.Extraction.BaseURL,
			})
			if err != nil {
				store.Close()
				return nil, err
			}
		}
		extractor, err = extract.NewExtractor(cfg.Extraction.Strategy, generator)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return New(
		WithStore(store),
		WithEmbedder(embedder),
		WithRanker(&search.TwoStageRanker{K1: cfg.Search.BM25K1, B: cfg.Search.BM25B}),
		WithExtractor(extractor),
		WithTopK(cfg.Search.TopK),
	)
}

// Close releases the underlying store.
func (m *Memtor) Close() error {
	return m.store.Close()
}

// AddOptions carries the optional attributes of a new memory.
type AddOptions struct {
	Metadata  map[string]any
	UserID    string
	SessionID string
	AgentID   string
}

// AddMemory embeds the content, attaches scope attributes, and saves a new
// record. An embedding failure is fatal: no embedding, no save.
func (m *Memtor) AddMemory(ctx context.Context, content string, opts AddOptions) (string, error) {
	return m.addRecord(ctx, content, opts, nil)
}

// AddExchange stores one user/assistant exchange as a memory. The configured
// extractor is consulted for structured context; extraction failures degrade
// to no context rather than blocking the save.
func (m *Memtor) AddExchange(ctx context.Context, userMessage, assistantResponse string, opts AddOptions) (string, error) {
	var extracted map[string]any
	if m.extractor != nil {
		var err error
		extracted, err = m.extractor.Extract(ctx, userMessage, assistantResponse)
		if err != nil {
			log.Printf("memtor: context extraction failed, storing without context: %v", err)
			extracted = nil
		}
	}

	content := fmt.Sprintf("User: %s\nAssistant: %s", userMessage, assistantResponse)
	return m.addRecord(ctx, content, opts, extracted)
}

func (m *Memtor) addRecord(ctx context.Context, content string, opts AddOptions, extracted map[string]any) (string, error) {
	if content == "" {
		return "", fmt.Errorf("memtor: %w: content must not be empty", types.ErrInvalidArgument)
	}

	embedding, err := m.embed(ctx, content)
	if err != nil {
		return "", err
	}

	rec := types.NewRecord(content, opts.Metadata, embedding)
	rec.SetScope(opts.UserID, opts.SessionID, opts.AgentID)
	rec.Context = extracted

	if err := m.store.Save(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// GetMemory retrieves a record by id; types.ErrNotFound when absent.
func (m *Memtor) GetMemory(ctx context.Context, id string) (*types.Record, error) {
	return m.store.Load(ctx, id)
}

// UpdateMemory re-embeds the new content and applies the merge-update:
// content and embedding replaced, metadata merged with new keys winning, the
// pre-update snapshot appended to history. Returns false when id is absent.
func (m *Memtor) UpdateMemory(ctx context.Context, id, content string, metadata map[string]any) (bool, error) {
	if content == "" {
		return false, fmt.Errorf("memtor: %w: content must not be empty", types.ErrInvalidArgument)
	}

	embedding, err := m.embed(ctx, content)
	if err != nil {
		return false, err
	}
	return m.store.Update(ctx, id, content, metadata, embedding)
}

// DeleteMemory removes a record; false when absent.
func (m *Memtor) DeleteMemory(ctx context.Context, id string) (bool, error) {
	return m.store.Delete(ctx, id)
}

// DeleteMemoriesByUser deletes every record scoped to the user and reports
// how many were removed.
func (m *Memtor) DeleteMemoriesByUser(ctx context.Context, userID string) (int, error) {
	return m.deleteByScope(ctx, storage.ScopeFilters{types.ScopeUserID: userID})
}

// DeleteMemoriesBySession deletes every record scoped to the session.
func (m *Memtor) DeleteMemoriesBySession(ctx context.Context, sessionID string) (int, error) {
	return m.deleteByScope(ctx, storage.ScopeFilters{types.ScopeSessionID: sessionID})
}

func (m *Memtor) deleteByScope(ctx context.Context, scopes storage.ScopeFilters) (int, error) {
	records, err := m.store.FindByScopes(ctx, scopes)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range records {
		removed, err := m.store.Delete(ctx, rec.ID)
		if err != nil {
			return deleted, err
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}

// ListOptions narrows ListMemories by scope and metadata predicates.
type ListOptions struct {
	UserID    string
	SessionID string
	AgentID   string
	Filters   []types.Filter
}

// ListMemories returns records matching the scope attributes and metadata
// filters. With no scopes set, the whole store is scanned.
func (m *Memtor) ListMemories(ctx context.Context, opts ListOptions) ([]*types.Record, error) {
	scopes := scopeFilters(opts.UserID, opts.SessionID, opts.AgentID)

	var records []*types.Record
	var err error
	if len(scopes) > 0 {
		records, err = m.store.FindByScopes(ctx, scopes)
	} else {
		records, err = m.store.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	return types.ApplyFilters(records, opts.Filters)
}

// ClearAll empties the store.
func (m *Memtor) ClearAll(ctx context.Context) error {
	return m.store.ClearAll(ctx)
}

// TimeRange bounds a search to [Start, End] inclusive.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SearchRequest is the query surface of the façade.
type SearchRequest struct {
	// Query is free text; it is embedded for the cosine stage and tokenized
	// for the lexical stage. Vector supplies a precomputed query embedding
	// instead; when set, the lexical stage still runs if Query is also set.
	Query  string
	Vector []float64

	// TopK caps the result count; 0 uses the instance default.
	TopK int

	TimeRange *TimeRange

	UserID    string
	SessionID string
	AgentID   string

	// Keywords get a lexical-stage score boost independent of Query.
	Keywords []string

	// Filters are metadata predicates, all of which must pass.
	Filters []types.Filter

	// SortBy is relevance (default when a query is present), time_desc
	// (default otherwise), or time_asc. Chronological sorts skip ranking.
	SortBy string
}

// Search translates the request into a storage query plus an optional
// ranking pass, sorts, and truncates to TopK.
//
// Fetch policy: a time range fetches by time; otherwise scope attributes
// fetch through the scope index; otherwise a query ranks the whole scope of
// the store; with none of these, the most recent TopK records are returned
// directly.
func (m *Memtor) Search(ctx context.Context, req SearchRequest) ([]*types.Record, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = m.topK
	}
	if err := validateSortBy(req.SortBy); err != nil {
		return nil, err
	}

	scopes := scopeFilters(req.UserID, req.SessionID, req.AgentID)
	hasQuery := req.Query != "" || len(req.Vector) > 0
	chronological := req.SortBy == SortByTimeDesc || req.SortBy == SortByTimeAsc || !hasQuery

	// Fast path: nothing to rank, no range, no predicates. FindRecent stops
	// walking the timestamp index as soon as it has enough records.
	if !hasQuery && req.TimeRange == nil && len(req.Filters) == 0 && req.SortBy != SortByTimeAsc {
		return m.store.FindRecent(ctx, topK, scopes)
	}

	candidates, err := m.fetchCandidates(ctx, req, scopes)
	if err != nil {
		return nil, err
	}
	candidates, err = types.ApplyFilters(candidates, req.Filters)
	if err != nil {
		return nil, err
	}

	if chronological {
		storage.SortByTimestamp(candidates, req.SortBy == SortByTimeAsc)
		return truncate(candidates, topK), nil
	}

	vector := req.Vector
	if len(vector) == 0 {
		vector, err = m.embed(ctx, req.Query)
		if err != nil {
			return nil, err
		}
	}

	ranked, err := m.ranker.Rank(search.Query{
		Text:     req.Query,
		Vector:   vector,
		Keywords: req.Keywords,
	}, candidates, topK)
	if err != nil {
		return nil, err
	}
	return truncate(ranked, topK), nil
}

func (m *Memtor) fetchCandidates(ctx context.Context, req SearchRequest, scopes storage.ScopeFilters) ([]*types.Record, error) {
	switch {
	case req.TimeRange != nil:
		return m.store.FindByTimeRange(ctx, req.TimeRange.Start, req.TimeRange.End, scopes)
	case len(scopes) > 0:
		return m.store.FindByScopes(ctx, scopes)
	default:
		return m.store.ListAll(ctx)
	}
}

func (m *Memtor) embed(ctx context.Context, text string) ([]float64, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("memtor: %w: no embedding provider configured", types.ErrInvalidArgument)
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("memtor: embedding failed: %w", err)
	}
	return vec, nil
}

func scopeFilters(userID, sessionID, agentID string) storage.ScopeFilters {
	scopes := storage.ScopeFilters{}
	if userID != "" {
		scopes[types.ScopeUserID] = userID
	}
	if sessionID != "" {
		scopes[types.ScopeSessionID] = sessionID
	}
	if agentID != "" {
		scopes[types.ScopeAgentID] = agentID
	}
	return scopes
}

func validateSortBy(sortBy string) error {
	switch sortBy {
	case "", SortByRelevance, SortByTimeDesc, SortByTimeAsc:
		return nil
	default:
		return fmt.Errorf("memtor: %w: unknown sort_by %q", types.ErrInvalidArgument, sortBy)
	}
}

func truncate(records []*types.Record, topK int) []*types.Record {
	if topK > 0 && len(records) > topK {
		return records[:topK]
	}
	return records
}
