package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var listLimit int

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Upload and index documents",
	Long: `Extracts the text of each file (PDF, DOCX or plain text), stores the
document for --owner and adds its chunks to the retrieval index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

var removeCmd = &cobra.Command{
	Use:   "remove [document-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from stored documents",
	Long: `Adds every indexed document in the document store back into the
retrieval index. Documents whose text is unchanged are skipped.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of documents")
	rootCmd.AddCommand(indexCmd, removeCmd, listCmd, reindexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, svc *cliServices) error {
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			doc, err := svc.Documents.Upload(ctx, ownerID, filepath.Base(path), content)
			if err != nil {
				return fmt.Errorf("failed to index %s: %w", path, err)
			}
			cmd.Printf("indexed %s as %s (%d chunks)\n", doc.Filename, doc.ID, doc.ChunkCount)
		}
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document id %q", args[0])
	}

	return withServices(cmd, func(ctx context.Context, svc *cliServices) error {
		if err := svc.Documents.Delete(ctx, ownerID, id); err != nil {
			return fmt.Errorf("failed to remove %s: %w", id, err)
		}
		cmd.Printf("removed %s\n", id)
		return nil
	})
}

func runList(cmd *cobra.Command, _ []string) error {
	if err := requireOwner(); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, svc *cliServices) error {
		docs, err := svc.Documents.List(ctx, ownerID, listLimit, 0)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			cmd.Println("No documents.")
			return nil
		}
		for _, d := range docs {
			cmd.Printf("%s  %-8s %4d chunks  %s\n", d.ID, d.Status, d.ChunkCount, d.Filename)
		}
		return nil
	})
}

func runReindex(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *cliServices) error {
		n, err := svc.Documents.Reindex(ctx)
		if err != nil {
			return fmt.Errorf("reindex stopped after %d documents: %w", n, err)
		}
		cmd.Printf("reindexed %d documents\n", n)
		return nil
	})
}
