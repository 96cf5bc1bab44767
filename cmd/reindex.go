package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/ingest"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <module> <file>...",
	Short: "Rebuild a module's knowledge base from a fresh file set",
	Long: `Reindex deletes all of a module's indexed chunks and re-ingests the given
files. Use after changing chunking parameters or the embedding model.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	moduleKey, paths := args[0], args[1:]

	files := make([]ingest.File, 0, len(paths))
	for _, path := range paths {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, ingest.File{
			ID:       uuid.NewString(),
			Filename: filepath.Base(path),
			Text:     string(text),
		})
	}

	ctx := cmd.Context()
	c, closeCore, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore()

	res, err := c.ingestor.ReindexModule(ctx, moduleKey, files)
	if err != nil {
		return err
	}

	cmd.Printf("module %s reindexed: %d files, %d chunks, %d vectors stored\n",
		moduleKey, len(files), res.ChunksCreated, res.VectorsStored)
	return nil
}
