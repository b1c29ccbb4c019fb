package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pleader-ai/pleader-backend/services/rag"
)

var (
	queryTopK   int
	queryRerank bool
	queryJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about the owner's documents",
	Long: `Retrieves the passages most similar to the question from the owner's
documents and answers from them, citing each passage as [Source N].`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index document and chunk counts",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", rag.DefaultTopK, "number of passages to answer from")
	queryCmd.Flags().BoolVar(&queryRerank, "rerank", true, "rerank candidate passages with the language model")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(queryCmd, statsCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	return withServices(cmd, func(ctx context.Context, svc *cliServices) error {
		answer, err := svc.Answerer.Answer(ctx, rag.AnswerRequest{
			Query:     question,
			OwnerID:   ownerID,
			TopK:      queryTopK,
			UseRerank: queryRerank,
		})
		if err != nil {
			return err
		}

		if queryJSON {
			data, err := json.MarshalIndent(answer, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal answer: %w", err)
			}
			cmd.Println(string(data))
			return nil
		}

		cmd.Println(answer.AnswerText)
		if len(answer.Citations) == 0 {
			return nil
		}
		cmd.Println()
		cmd.Println("Sources:")
		for i, c := range answer.Citations {
			cmd.Printf("  [Source %d] %s #%d (%.3f)\n", i+1, c.Filename, c.Position, c.Score)
		}
		if answer.UsedRerank {
			cmd.Println("  (reranked)")
		}
		return nil
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *cliServices) error {
		stats, err := svc.Index.Stats(ctx)
		if err != nil {
			return err
		}
		backend := ""
		if svc.Config != nil {
			backend = svc.Config.RAG.IndexBackend
		}
		cmd.Printf("documents: %d\nchunks:    %d\n", stats.DocumentCount, stats.ChunkCount)
		if backend != "" {
			cmd.Printf("backend:   %s\n", backend)
		}
		return nil
	})
}
