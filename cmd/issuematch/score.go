package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dshills/issuematch-mcp/internal/embedder"
	"github.com/dshills/issuematch-mcp/internal/ranker"
)

// fileScore is the unfiltered similarity of one local file to an issue
type fileScore struct {
	Path  string
	Score float64
	Err   error
}

func newScoreCmd(configPath *string) *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "score [files...]",
		Short: "Print raw similarity of local files to an issue with the configured embedder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(*configPath)
			if err != nil {
				return err
			}

			emb, err := embedder.New(embedder.Config{
				Provider:  cfg.Embedding.Provider,
				APIKey:    cfg.Embedding.APIKey,
				BaseURL:   cfg.Embedding.BaseURL,
				Model:     cfg.Embedding.Model,
				CacheSize: cfg.Embedding.CacheSize,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}
			defer func() { _ = emb.Close() }()

			scores, err := scoreFiles(cmd.Context(), emb, title+" "+description, args)
			if err != nil {
				return err
			}
			printScores(cmd.OutOrStdout(), emb, cfg.Ranking.Threshold, scores)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Issue title")
	cmd.Flags().StringVar(&description, "description", "", "Issue description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

// scoreFiles embeds issueText verbatim and each file preprocessed, as a match does
func scoreFiles(ctx context.Context, emb embedder.Embedder, issueText string, paths []string) ([]fileScore, error) {
	issueVec, err := embedder.Embed(ctx, emb, issueText)
	if err != nil {
		return nil, fmt.Errorf("embed issue: %w", err)
	}

	scores := make([]fileScore, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			scores = append(scores, fileScore{Path: path, Err: err})
			continue
		}
		text := embedder.Preprocess(string(data))
		if text == "" {
			scores = append(scores, fileScore{Path: path})
			continue
		}
		vec, err := embedder.Embed(ctx, emb, text)
		if err != nil {
			scores = append(scores, fileScore{Path: path, Err: err})
			continue
		}
		scores = append(scores, fileScore{Path: path, Score: ranker.CosineSimilarity(issueVec, vec)})
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores, nil
}

func printScores(w io.Writer, emb embedder.Embedder, threshold float64, scores []fileScore) {
	fmt.Fprintf(w, "Provider: %s (%s, %d dims)\n", emb.Provider(), emb.Model(), emb.Dimension())
	fmt.Fprintf(w, "Threshold: %.2f\n\n", threshold)
	for _, s := range scores {
		switch {
		case s.Err != nil:
			fmt.Fprintf(w, "  %-8s %s (%v)\n", "error", s.Path, s.Err)
		case s.Score > threshold:
			fmt.Fprintf(w, "  %.4f ✓ %s\n", s.Score, s.Path)
		default:
			fmt.Fprintf(w, "  %.4f   %s\n", s.Score, s.Path)
		}
	}
}
