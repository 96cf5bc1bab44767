package cmd

import (
	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/compose"
	"github.com/scribeworks/scribe/internal/retrieve"
)

var (
	searchTopK      int
	searchRerank    bool
	searchThreshold float64
	searchCompose   bool
	searchTemplate  string
)

var searchCmd = &cobra.Command{
	Use:   "search <module> <query>",
	Short: "Retrieve knowledge chunks relevant to a query",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", retrieve.DefaultTopK, "maximum hits to return")
	searchCmd.Flags().BoolVar(&searchRerank, "rerank", false, "rerank candidates with the LLM scorer")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity score")
	searchCmd.Flags().BoolVar(&searchCompose, "compose", false, "print the composed context block instead of raw hits")
	searchCmd.Flags().StringVar(&searchTemplate, "template", compose.TemplateDefault, "composition template: default, detailed or minimal")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	moduleKey, query := args[0], args[1]

	ctx := cmd.Context()
	c, closeCore, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore()

	result, err := c.retriever.Retrieve(ctx, moduleKey, query, retrieve.Options{
		TopK:           searchTopK,
		ScoreThreshold: float32(searchThreshold),
		Rerank:         searchRerank,
	})
	if err != nil {
		return err
	}

	if searchCompose {
		opts := compose.DefaultOptions()
		opts.MaxTokens = c.cfg.ContextMaxTokens
		opts.Template = searchTemplate
		composed := compose.Compose(result.Hits, opts)
		cmd.Printf("%s\n\n-- %d chunks, ~%d tokens, sources: %v\n",
			composed.ContextText, composed.ChunksUsed, composed.TotalTokens, composed.Sources)
		return nil
	}

	cmd.Printf("%d hits (retrieved %d)\n", len(result.Hits), result.TotalRetrieved)
	for i, h := range result.Hits {
		cmd.Printf("\n[%d] score=%.3f source=%s chunk=%d\n%s\n",
			i+1, h.Score, h.Filename, h.ChunkIndex, h.Text)
	}
	return nil
}
