package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/ingest"
)

var ingestFileID string

var ingestCmd = &cobra.Command{
	Use:   "ingest <module> <file>",
	Short: "Index a document into a module's knowledge base",
	Args:  cobra.ExactArgs(2),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFileID, "file-id", "", "stable file identifier (default: random)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	moduleKey, path := args[0], args[1]

	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ctx := cmd.Context()
	c, closeCore, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore()

	fileID := ingestFileID
	if fileID == "" {
		fileID = uuid.NewString()
	}

	res, err := c.ingestor.IngestDocument(ctx, moduleKey, fileID, filepath.Base(path), string(text))
	if err != nil {
		return err
	}

	printIngestResult(cmd, fileID, res)
	return nil
}

func printIngestResult(cmd *cobra.Command, fileID string, res ingest.Result) {
	cmd.Printf("file %s indexed: %d chunks, %d tokens, %d vectors stored\n",
		fileID, res.ChunksCreated, res.TotalTokens, res.VectorsStored)
}
