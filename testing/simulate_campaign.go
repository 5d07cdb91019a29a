// Command simulate_campaign plays a campaign with a model-controlled party
// against the real engine, for exercising the bookkeeping end to end.
//
//	go run ./testing --dir /tmp/campaign --turns 10
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/engine"
	"github.com/tatianab/chronicle/internal/logger"
	"github.com/tatianab/chronicle/internal/models"
)

func main() {
	var (
		dir     string
		turns   int
		chapter string
	)

	cmd := &cobra.Command{
		Use:   "simulate_campaign",
		Short: "Play a campaign with a model-controlled party",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simulate(cmd.Context(), dir, turns, chapter)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", ".", "Campaign directory")
	cmd.Flags().IntVarP(&turns, "turns", "n", 10, "Number of turns to play")
	cmd.Flags().StringVar(&chapter, "chapter", "simulation", "Chapter the turns are filed under (empty for none)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func simulate(ctx context.Context, dir string, turns int, chapterSlug string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(logger.WithPretty(true), logger.WithDebug(cfg.Debug))

	// The game master.
	genOpt, err := engine.GeminiOption(ctx, cfg)
	if err != nil {
		return err
	}
	loreOpt, err := engine.LoreOption(ctx, cfg, log)
	if err != nil {
		return err
	}
	gm := engine.Open(cfg, log, genOpt, loreOpt)
	defer gm.Close()

	// The party.
	key, _ := cfg.APIKey()
	playerClient, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return fmt.Errorf("creating player client: %w", err)
	}
	defer playerClient.Close()
	player := playerClient.GenerativeModel(cfg.Model)

	if chapterSlug != "" {
		if _, err := gm.ChapterStart(chapterSlug, ""); err != nil {
			return err
		}
	}

	narration := ""
	for i := 1; i <= turns; i++ {
		state, err := gm.State()
		if err != nil {
			return err
		}
		action := partyAction(ctx, player, state, narration, log)
		fmt.Printf("--- Turn %d ---\nParty: %s\n", i, action)

		res, err := gm.ProcessTurn(ctx, action)
		if res != nil {
			narration = res.Display()
			fmt.Printf("GM: %s\n", narration)
			if !res.StateUpdated {
				fmt.Printf("State NOT updated: %v\n", res.DeltaErr)
			}
			for _, issue := range res.Issues {
				fmt.Printf("Dropped: %s\n", issue)
			}
			fmt.Printf("Now: %s\n\n", res.State.When())
		}
		if err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}

	if chapterSlug != "" {
		path, err := gm.ChapterEnd()
		if err != nil {
			return err
		}
		fmt.Printf("Chapter compiled: %s\n", path)
	}
	return nil
}

func partyAction(ctx context.Context, model *genai.GenerativeModel, state models.WorldState, narration string, log *slog.Logger) string {
	var quests []string
	for _, q := range state.Quests {
		quests = append(quests, fmt.Sprintf("- %s (%s)", q.Title, q.Status))
	}
	if narration == "" {
		narration = "(the campaign is just beginning)"
	}

	prompt := fmt.Sprintf(`You are the party in a tabletop role-playing campaign.
It is %s.
Open quests:
%s

The game master just said:
%s

What does the party do next? Stay within the world as described. Return ONLY the action, in one or two sentences.`,
		state.When(),
		strings.Join(quests, "\n"),
		narration,
	)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		log.Warn("player model failed", "error", err)
		return "We look around."
	}
	text, err := engine.ResponseText(resp)
	if err != nil {
		return "We press on."
	}
	return strings.TrimSpace(text)
}
