package lore_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tatianab/chronicle/internal/lore"
)

// keywordEmbedder places text in a tiny space with one axis per keyword.
type keywordEmbedder struct{}

var keywords = []string{"river", "guild", "dragon", "mountain"}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	v := make([]float32, len(keywords)+1)
	for i, k := range keywords {
		v[i] = float32(strings.Count(text, k))
	}
	v[len(keywords)] = 0.1
	return v, nil
}

func (keywordEmbedder) Close() error { return nil }

func writeLore(root string) {
	files := map[string]string{
		"regions/vale.md": "# The Vale\nIntro text that is ignored.\n" +
			"## Overview\nThe river runs through the vale, broad and slow, past every farm.\n" +
			"## Short\ntiny\n",
		"factions/millers.md": "## Guild Charter\nThe millers guild sets the price of flour and answers to no lord.\n",
		"dragon.md":           "## Dragon Lore\nA dragon sleeps beneath the old quarry and has not woken for a century.\n",
		"regions/notes.txt":   "## Ignored\nThis file is not markdown so it is never ingested at all.\n",
	}
	for name, body := range files {
		path := filepath.Join(root, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
	}
}

var _ = Describe("ParseSections", func() {
	It("splits on level-two headers and drops the preamble", func() {
		sections := lore.ParseSections("# Title\npreamble\n## One\na\nb\n### Sub\nc\n## Two\n")
		Expect(sections).To(Equal([]lore.Section{
			{Header: "## One", Body: "a\nb\n### Sub\nc"},
			{Header: "## Two", Body: ""},
		}))
	})

	It("returns nothing for text without sections", func() {
		Expect(lore.ParseSections("just prose")).To(BeEmpty())
	})
})

var _ = Describe("Chunks", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		writeLore(root)
	})

	It("keeps sections long enough to matter with their provenance", func() {
		chunks, err := lore.Chunks(root)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(3))

		byID := map[string]lore.Chunk{}
		for _, c := range chunks {
			byID[c.ID] = c
		}

		vale, ok := byID["regions/vale.md:0"]
		Expect(ok).To(BeTrue())
		Expect(vale.Text).To(HavePrefix("## Overview\nThe river runs"))
		Expect(vale.Metadata).To(Equal(map[string]string{
			"type":        "region",
			"name":        "vale",
			"section":     "Overview",
			"source_file": "regions/vale.md",
			"canon":       "hard",
		}))

		Expect(byID).To(HaveKey("factions/millers.md:0"))
		Expect(byID["factions/millers.md:0"].Metadata["type"]).To(Equal("faction"))
		Expect(byID["dragon.md:0"].Metadata["type"]).To(Equal("general"))
	})
})

var _ = Describe("Format", func() {
	It("tags each chunk and separates them with blank lines", func() {
		out := lore.Format([]lore.Chunk{
			{Text: "A", Metadata: map[string]string{"type": "region", "name": "vale", "section": "Overview"}},
			{Text: "B"},
		})
		Expect(out).To(Equal("[region:vale:Overview]\nA\n\n[?:?:?]\nB"))
	})

	It("renders nothing for no chunks", func() {
		Expect(lore.Format(nil)).To(BeEmpty())
	})
})

var _ = Describe("LocalStore", func() {
	var (
		ctx   context.Context
		store *lore.LocalStore
		root  string
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		writeLore(root)

		var err error
		store, err = lore.NewLocalStore(filepath.Join(GinkgoT().TempDir(), "db"), "lore", keywordEmbedder{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("ingests and retrieves the closest lore", func() {
		n, err := lore.Ingest(ctx, store, root)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))

		text, err := lore.NewRetriever(store).Retrieve(ctx, "We follow the river", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(HavePrefix("[region:vale:Overview]\n## Overview"))
	})

	It("replaces chunks when ingesting twice", func() {
		_, err := lore.Ingest(ctx, store, root)
		Expect(err).NotTo(HaveOccurred())
		_, err = lore.Ingest(ctx, store, root)
		Expect(err).NotTo(HaveOccurred())

		count, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(3))
	})

	It("caps results at the collection size", func() {
		_, err := lore.Ingest(ctx, store, root)
		Expect(err).NotTo(HaveOccurred())

		chunks, err := store.Query(ctx, "dragon", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(3))
		Expect(chunks[0].ID).To(Equal("dragon.md:0"))
	})

	It("returns nothing from an empty collection", func() {
		chunks, err := store.Query(ctx, "anything", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(BeEmpty())
	})
})

type fakeChroma struct {
	mu       sync.Mutex
	created  bool
	upserted map[string]string
}

func (f *fakeChroma) handler() http.Handler {
	const base = "/api/v2/tenants/default_tenant/databases/default_database/collections"
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+base+"/lore", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.created {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "c-1", "name": "lore"})
	})
	mux.HandleFunc("POST "+base, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = true
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "c-1", "name": "lore"})
	})
	mux.HandleFunc("POST "+base+"/c-1/upsert", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs       []string `json:"ids"`
			Documents []string `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, id := range req.IDs {
			f.upserted[id] = req.Documents[i]
		}
		_, _ = w.Write([]byte("{}"))
	})
	mux.HandleFunc("POST "+base+"/c-1/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{{"regions/vale.md:0"}},
			"documents": [][]string{{"## Overview\nThe river runs."}},
			"metadatas": [][]map[string]any{{{"type": "region", "name": "vale", "section": "Overview", "rank": 1}}},
			"distances": [][]float32{{0.2}},
		})
	})
	mux.HandleFunc("GET "+base+"/c-1/count", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(len(f.upserted))
	})
	return mux
}

var _ = Describe("ChromaStore", func() {
	var (
		ctx    context.Context
		fake   *fakeChroma
		server *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeChroma{upserted: map[string]string{}}
		server = httptest.NewServer(fake.handler())
		DeferCleanup(server.Close)
	})

	It("creates the collection, upserts and queries", func() {
		store, err := lore.Open(ctx, lore.Options{
			Provider:   "chroma",
			Target:     server.URL,
			Collection: "lore",
			Embedder:   keywordEmbedder{},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.created).To(BeTrue())

		root := GinkgoT().TempDir()
		writeLore(root)
		n, err := lore.Ingest(ctx, store, root)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))
		Expect(fake.upserted).To(HaveKeyWithValue("regions/vale.md:0", HavePrefix("## Overview")))

		count, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(3))

		chunks, err := store.Query(ctx, "river", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Text).To(Equal("## Overview\nThe river runs."))
		Expect(chunks[0].Metadata).To(Equal(map[string]string{"type": "region", "name": "vale", "section": "Overview"}))
	})

	It("reuses an existing collection", func() {
		fake.created = true
		_, err := lore.NewChromaStore(ctx, server.URL, "lore", keywordEmbedder{}, nopLogger())
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a URL", func() {
		_, err := lore.NewChromaStore(ctx, "", "lore", keywordEmbedder{}, nopLogger())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("OllamaEmbedder", func() {
	It("returns the first embedding", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/embed"))
			var req map[string]string
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["model"]).To(Equal("nomic-embed-text"))
			Expect(req["input"]).To(Equal("the vale"))
			_, _ = w.Write([]byte(`{"embeddings": [[0.5, 0.25]]}`))
		}))
		DeferCleanup(server.Close)

		emb, err := lore.NewOllamaEmbedder(server.URL, "").Embed(context.Background(), "the vale")
		Expect(err).NotTo(HaveOccurred())
		Expect(emb).To(Equal([]float32{0.5, 0.25}))
	})

	It("wraps server failures in ErrEmbedding", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		DeferCleanup(server.Close)

		_, err := lore.NewOllamaEmbedder(server.URL, "missing").Embed(context.Background(), "x")
		Expect(errors.Is(err, lore.ErrEmbedding)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("model not found"))
	})
})

var _ = Describe("Open", func() {
	It("returns no store for the none provider", func() {
		store, err := lore.Open(context.Background(), lore.Options{Provider: "none"})
		Expect(err).NotTo(HaveOccurred())
		Expect(store).To(BeNil())
	})

	It("rejects unknown providers", func() {
		_, err := lore.Open(context.Background(), lore.Options{Provider: "pinecone"})
		Expect(errors.Is(err, lore.ErrUnknownProvider)).To(BeTrue())
	})

	It("opens an in-memory chromem store", func() {
		store, err := lore.Open(context.Background(), lore.Options{Provider: "chromem", Collection: "lore", Embedder: keywordEmbedder{}})
		Expect(err).NotTo(HaveOccurred())
		Expect(store).To(BeAssignableToTypeOf(&lore.LocalStore{}))
	})
})

var _ = Describe("Nop", func() {
	It("retrieves nothing", func() {
		text, err := lore.Nop().Retrieve(context.Background(), "anything", 6)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(BeEmpty())
	})
})
