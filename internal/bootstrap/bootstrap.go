package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/construction-graphrag/internal/config"
	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
	"github.com/kirillkom/construction-graphrag/internal/core/usecase"
	embedcache "github.com/kirillkom/construction-graphrag/internal/infrastructure/cache/sqlite"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/chunking"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/extractor/dispatch"
	imageparser "github.com/kirillkom/construction-graphrag/internal/infrastructure/extractor/image"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/extractor/xlsx"
	graphstore "github.com/kirillkom/construction-graphrag/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/llm/clip"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/resilience"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/vector/chromem"
	"github.com/kirillkom/construction-graphrag/internal/infrastructure/vector/qdrant"
)

// App holds the use cases for the API and the worker.
type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	QueryUC   *usecase.QueryUseCase
	AdminUC   ports.DocumentAdmin

	closers []func()
}

// QueryApp is the read-only subset used by the MCP server.
type QueryApp struct {
	QueryUC *usecase.QueryUseCase

	closers []func()
}

// stores are the retrieval backends shared by ingestion, querying and
// deletion.
type stores struct {
	exec     *resilience.Executor
	ollama   *ollama.Client
	embedder ports.Embedder
	vector   ports.VectorIndex
	images   ports.VectorIndex
	imageEmb ports.ImageEmbedder
	lexical  *bm25.Index
	graph    *graphstore.Store
	tables   retrievalTables
	closers  []func()
}

func (s *stores) close() {
	closeAll(s.closers)
}

func closeAll(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// New wires every store and use case. observer may be nil.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer usecase.RetrievalObserver) (*App, error) {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg}
	app.closers = append(app.closers, st.close)
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fail(fmt.Errorf("open postgres: %w", err))
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fail(fmt.Errorf("init object storage: %w", err))
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: st.exec,
		Logger:             logger,
	})
	if err != nil {
		return fail(fmt.Errorf("init message queue: %w", err))
	}
	app.closers = append(app.closers, queue.Close)

	extractor := dispatch.NewExtractor(storage, map[string]dispatch.Parser{
		domain.MediaTypePDF:  pdf.NewParser(),
		domain.MediaTypeXLSX: xlsx.NewParser(),
		domain.MediaTypePNG:  imageparser.NewParser(),
		domain.MediaTypeJPEG: imageparser.NewParser(),
	})

	entityStrategies := []ports.EntityExtractor{usecase.RegexEntityExtractor{}}
	if cfg.LLMEntityExtraction {
		entityStrategies = append(entityStrategies, ollama.NewEntityExtractor(st.ollama))
	}

	app.Queue = queue
	app.Repo = repo
	app.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(usecase.ProcessDependencies{
		Repo:          repo,
		Extractor:     extractor,
		Chunker:       chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		Embedder:      st.embedder,
		Vector:        st.vector,
		Lexical:       st.lexical,
		Images:        st.images,
		ImageEmbedder: st.imageEmb,
		Entities:      usecase.NewCompositeEntityExtractor(logger, entityStrategies...),
		Graph:         st.graph,
	}, usecase.ProcessConfig{
		SectionBoosts: st.tables.sectionBoosts,
	}, logger)
	app.QueryUC = newQueryUseCase(cfg, st, logger, observer)

	app.AdminUC = usecase.NewDocumentAdminUseCase(usecase.AdminDependencies{
		Repo:    repo,
		Storage: storage,
		Vector:  st.vector,
		Lexical: st.lexical,
		Images:  st.images,
		Graph:   st.graph,
	}, logger)

	return app, nil
}

// NewQueryApp wires only what answering needs: no Postgres, NATS or upload
// storage.
func NewQueryApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*QueryApp, error) {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &QueryApp{
		QueryUC: newQueryUseCase(cfg, st, logger, nil),
		closers: []func(){st.close},
	}, nil
}

// resilienceConfig keeps retries for ingestion writes while query path calls
// run once behind their breakers; QueryEmbedder owns the query retry.
func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.Policies = resilience.QueryPathPolicies(cfg.QueryRetryMaxAttempts)
	return rc
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	tables, err := loadRetrievalTables(cfg.RetrievalTablesPath)
	if err != nil {
		return nil, err
	}

	st := &stores{
		exec:   resilience.NewExecutor(resilienceConfig(cfg)).WithLogger(logger),
		tables: tables,
	}
	fail := func(err error) (*stores, error) {
		st.close()
		return nil, err
	}

	st.ollama = ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, st.exec)
	cached, err := embedcache.Open(ctx, cfg.EmbedCachePath, cfg.OllamaEmbedModel, ollama.NewEmbedder(st.ollama, cfg.EmbeddingDimension), logger)
	if err != nil {
		return fail(fmt.Errorf("open embedding cache: %w", err))
	}
	st.closers = append(st.closers, func() { _ = cached.Close() })
	st.embedder = cached

	if err := openVectorBackend(cfg, st); err != nil {
		return fail(err)
	}

	lexical, err := bm25.Open(ctx, cfg.LexicalDBPath)
	if err != nil {
		return fail(fmt.Errorf("open lexical index: %w", err))
	}
	st.closers = append(st.closers, func() { _ = lexical.Close() })
	st.lexical = lexical

	graph, err := graphstore.Open(ctx, graphstore.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, st.exec, logger)
	if err != nil {
		return fail(fmt.Errorf("open graph store: %w", err))
	}
	st.closers = append(st.closers, func() { _ = graph.Close(context.Background()) })
	st.graph = graph

	return st, nil
}

func openVectorBackend(cfg config.Config, st *stores) error {
	imagesEnabled := cfg.ImageRetrievalEnabled()
	if imagesEnabled {
		st.imageEmb = clip.New(cfg.CLIPURL, st.exec)
	}

	switch cfg.VectorBackend {
	case "", "qdrant":
		st.vector = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, st.exec)
		if imagesEnabled {
			st.images = qdrant.New(cfg.QdrantURL, cfg.QdrantImageCollection, st.exec)
		}
	case "chromem":
		store, err := chromem.Open(cfg.ChromemPath)
		if err != nil {
			return err
		}
		text, err := store.Index(cfg.QdrantCollection)
		if err != nil {
			return err
		}
		st.vector = text
		if imagesEnabled {
			images, err := store.Index(cfg.QdrantImageCollection)
			if err != nil {
				return err
			}
			st.images = images
		}
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
	return nil
}

func newQueryUseCase(cfg config.Config, st *stores, logger *slog.Logger, observer usecase.RetrievalObserver) *usecase.QueryUseCase {
	expander := usecase.NewExpander(st.tables.synonyms, st.tables.expansionCap)

	textEmbeddings := usecase.NewQueryEmbedder(st.embedder.EmbedQuery, usecase.QueryEmbedderConfig{
		Name:      "text",
		Dimension: cfg.EmbeddingDimension,
		Timeout:   cfg.EmbeddingTimeout,
		Backoff:   cfg.EmbeddingRetryBackoff,
	}, logger, observer)

	var image usecase.ImageSource
	if st.images != nil && st.imageEmb != nil {
		image = usecase.ImageSource{
			Index:    st.images,
			Embedder: imageQueryEmbedder(cfg, st.imageEmb, logger, observer),
		}
	}

	fusion := usecase.NewFusionEngine(expander, textEmbeddings, st.vector, st.lexical, image, usecase.FusionConfig{
		VectorTopK:     cfg.RetrievalVectorTopK,
		LexicalTopK:    cfg.RetrievalLexicalTopK,
		ImageTopK:      cfg.RetrievalImageTopK,
		ContextTopK:    cfg.RetrievalContextTopK,
		RRFK:           cfg.RetrievalRRFK,
		DiagramBoost:   cfg.DiagramBoost,
		SectionBoosts:  st.tables.sectionBoosts,
		ImageRetrieval: image.Index != nil,
		SearchTimeout:  cfg.SearchTimeout,
	}, logger, observer)

	synthesizer := ollama.NewSynthesizer(st.ollama, ollama.SynthesisOptions{
		Temperature: cfg.SynthesisTemperature,
		MaxTokens:   cfg.SynthesisMaxTokens,
	})

	return usecase.NewQueryUseCase(usecase.NewRouter(), expander, fusion, st.graph, synthesizer, usecase.QueryConfig{
		ContextTopK:      cfg.RetrievalContextTopK,
		SynthesisChunks:  cfg.SynthesisContextChunks,
		GraphFactLimit:   cfg.GraphFactLimit,
		SearchTimeout:    cfg.SearchTimeout,
		SynthesisTimeout: cfg.SynthesisTimeout,
	}, logger, observer)
}

func (a *App) Close() {
	closeAll(a.closers)
}

func (a *QueryApp) Close() {
	closeAll(a.closers)
}

// imageQueryEmbedder embeds query text into the CLIP space; vectors that do
// not match IMAGE_EMBEDDING_DIMENSION fail with ErrEmbeddingDimension.
func imageQueryEmbedder(cfg config.Config, emb ports.ImageEmbedder, logger *slog.Logger, observer usecase.RetrievalObserver) *usecase.QueryEmbedder {
	return usecase.NewQueryEmbedder(emb.EmbedText, usecase.QueryEmbedderConfig{
		Name:      "image",
		Dimension: cfg.ImageEmbeddingDimension,
		Timeout:   cfg.EmbeddingTimeout,
		Backoff:   cfg.EmbeddingRetryBackoff,
	}, logger, observer)
}
