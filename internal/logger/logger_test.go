package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tatianab/chronicle/internal/logger"
)

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	ExpectWithOffset(1, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text by default", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("turn recorded", "turn", 7)

			Expect(buf.String()).To(ContainSubstring("turn recorded"))
			Expect(buf.String()).To(ContainSubstring("turn=7"))
		})

		It("hides debug lines unless asked", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf)).Debug("hidden")
			Expect(buf.String()).To(BeEmpty())

			logger.New(logger.WithWriter(&buf), logger.WithDebug(true)).Debug("shown")
			Expect(buf.String()).To(ContainSubstring("shown"))
		})

		It("writes JSON lines", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Warn("delta dropped entries", "count", 2)

			parsed := decodeLine(&buf)
			Expect(parsed["msg"]).To(Equal("delta dropped entries"))
			Expect(parsed["level"]).To(Equal("WARN"))
			Expect(parsed["count"]).To(BeNumerically("==", 2))
		})

		It("writes pretty lines through charmbracelet/log", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithDebug(true))
			l.Debug("pretty debug", "slug", "a1")

			Expect(buf.String()).To(ContainSubstring("pretty debug"))
			Expect(buf.String()).To(ContainSubstring("a1"))
		})

		It("fans out to several writers", func() {
			var a, b bytes.Buffer
			logger.New(logger.WithWriters(&a, &b)).Info("both")

			Expect(a.String()).To(ContainSubstring("both"))
			Expect(b.String()).To(ContainSubstring("both"))
		})

		It("binds attributes and groups", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.With("component", "journal").WithGroup("turn").Info("written", "number", 3)

			parsed := decodeLine(&buf)
			Expect(parsed["component"]).To(Equal("journal"))
			group, ok := parsed["turn"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(group["number"]).To(BeNumerically("==", 3))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level and never panics", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() {
				l.With("k", "v").WithGroup("g").Error("msg")
			}).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("sends each record to every logger", func() {
			var text, js bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&text)),
				logger.New(logger.WithWriter(&js), logger.WithJSON(true)),
			)
			multi.With("campaign", "vale").Info("broadcast")

			Expect(text.String()).To(ContainSubstring("campaign=vale"))
			Expect(decodeLine(&js)["campaign"]).To(Equal("vale"))
		})

		It("respects each logger's level", func() {
			var quiet, loud bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&quiet)),
				logger.New(logger.WithWriter(&loud), logger.WithDebug(true)),
			)
			multi.Debug("detail")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("detail"))
		})

		It("keeps writing after a sink fails", func() {
			var good bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(failingWriter{}), logger.WithJSON(true)),
				logger.New(logger.WithWriter(&good), logger.WithJSON(true)),
			)
			r := slog.NewRecord(time.Now(), slog.LevelInfo, "still here", 0)
			err := multi.Handler().Handle(context.Background(), r)

			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(decodeLine(&good)["msg"]).To(Equal("still here"))
		})

		It("is disabled when every logger is", func() {
			multi := logger.Multi(logger.Nop(), logger.Nop())
			Expect(multi.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		})
	})

	Describe("OpenFile", func() {
		It("creates the directory and appends", func() {
			path := filepath.Join(GinkgoT().TempDir(), "logs", "chronicle.log")

			for _, msg := range []string{"first", "second"} {
				f, err := logger.OpenFile(path)
				Expect(err).NotTo(HaveOccurred())
				logger.New(logger.WithWriter(f), logger.WithJSON(true)).Info(msg)
				Expect(f.Close()).To(Succeed())
			}

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(string(data), "\n")).To(Equal(2))
			Expect(string(data)).To(ContainSubstring("first"))
			Expect(string(data)).To(ContainSubstring("second"))
		})
	})
})

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
