package cli_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tatianab/chronicle/internal/cli"
	"github.com/tatianab/chronicle/internal/config"
)

func run(stdin string, args ...string) (string, error) {
	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var _ = Describe("NewRootCmd", func() {
	It("registers every command", func() {
		cmd := cli.NewRootCmd()
		var names []string
		for _, c := range cmd.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements("init", "play", "turn", "snapshot", "snapshots", "chapter", "lore"))
	})

	It("has a --dir flag", func() {
		f := cli.NewRootCmd().PersistentFlags().Lookup("dir")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("."))
	})
})

var _ = Describe("Campaign commands", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		GinkgoT().Setenv("GEMINI_API_KEY", "")
		GinkgoT().Setenv("CHRONICLE_GEMINI_API_KEY", "")
	})

	Describe("init", func() {
		It("lays out a new campaign", func() {
			out, err := run("", "init", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Initialized campaign"))

			Expect(filepath.Join(dir, config.FileName)).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "state", "current.json")).To(BeAnExistingFile())
			for _, d := range []string{"sessions", "public_journal", filepath.Join("public_journal", "chapters"), "lore"} {
				Expect(filepath.Join(dir, d)).To(BeADirectory())
			}
		})

		It("leaves an existing campaign alone", func() {
			_, err := run("", "init", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			out, err := run("", "init", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Already initialized"))
		})
	})

	Describe("snapshot", func() {
		It("saves and lists labelled snapshots", func() {
			out, err := run("", "snapshot", "before siege", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(MatchRegexp(`Snapshot saved: .*_before_siege\.json`))

			out, err = run("", "snapshot", "--compress", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(MatchRegexp(`_snapshot\.json\.zst`))

			out, err = run("", "snapshots", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("before_siege"))
			Expect(out).To(ContainSubstring("snapshot"))
		})

		It("reports when there are none", func() {
			out, err := run("", "snapshots", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("No snapshots.\n"))
		})

		It("logs to the campaign log file", func() {
			_, err := run("", "snapshot", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			data, err := os.ReadFile(filepath.Join(dir, "logs", cli.LogFile))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"snapshot saved"`))
		})
	})

	Describe("chapter", func() {
		It("runs the chapter lifecycle", func() {
			out, err := run("", "chapter", "status", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("No active chapter.\n"))

			_, err = run("", "chapter", "compile", "--dir", dir)
			Expect(err).To(MatchError(ContainSubstring("no active chapter")))

			out, err = run("", "chapter", "start", "a1", "Arrival", "at", "Dawn", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("Chapter started: Arrival at Dawn (a1)\n"))

			out, err = run("", "chapter", "status", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`Chapter "Arrival at Dawn" (a1), turns: none yet`))

			out, err = run("", "chapter", "end", "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("nothing compiled"))
			Expect(filepath.Join(dir, "public_journal", "chapters", "a1.md")).NotTo(BeAnExistingFile())
		})

		It("rejects unsafe slugs", func() {
			_, err := run("", "chapter", "start", "../up", "--dir", dir)
			Expect(err).To(MatchError(ContainSubstring("invalid chapter slug")))
		})
	})

	Describe("turn", func() {
		It("needs an action", func() {
			_, err := run("  \n", "turn", "--dir", dir)
			Expect(err).To(MatchError("no action given"))
		})

		It("needs an API key", func() {
			_, err := run("", "turn", "We wait.", "--dir", dir)
			Expect(err).To(MatchError(ContainSubstring("GEMINI_API_KEY")))
		})
	})

	Describe("lore", func() {
		var ollama *httptest.Server

		BeforeEach(func() {
			ollama = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Input string `json:"input"`
				}
				_ = json.NewDecoder(r.Body).Decode(&req)
				text := strings.ToLower(req.Input)
				vec := []float32{0.1}
				for _, word := range []string{"river", "guild", "dragon"} {
					vec = append(vec, float32(strings.Count(text, word)))
				}
				_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec}})
			}))
			DeferCleanup(ollama.Close)

			files := map[string]string{
				"regions/vale.md":     "## Overview\nThe river runs through the vale, broad and slow, past every farm.\n",
				"factions/millers.md": "## Charter\nThe millers guild sets the price of flour and answers to no lord.\n",
			}
			for name, body := range files {
				path := filepath.Join(dir, "lore", name)
				Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
				Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
			}
		})

		It("ingests and queries with the embedded store", func() {
			out, err := run("", "lore", "ingest", "--lore-provider", "chromem", "--embedding-target", ollama.URL, "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("Ingested 2 chunks from " + filepath.Join(dir, "lore") + " (2 in store)\n"))

			out, err = run("", "lore", "query", "down", "the", "river", "-k", "1",
				"--lore-provider", "chromem", "--embedding-target", ollama.URL, "--dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HavePrefix("[region:vale:Overview]\n## Overview"))
		})

		It("refuses to run with lore disabled", func() {
			_, err := run("", "lore", "ingest", "--dir", dir)
			Expect(err).To(MatchError(ContainSubstring("lore is disabled")))
		})
	})
})
