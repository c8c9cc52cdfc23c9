package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smallnest/ragflow/orchestrator"
)

var (
	queryNamespace string
	queryTopK      int
	queryBudget    int
	querySession   string
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question against indexed sources",
	Long: `Retrieves context from the vector index and the knowledge graph, merges it
within the context budget and generates a grounded answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryNamespace, "namespace", "N", "", "namespace to query")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of vector results (0 uses TOP_K)")
	queryCmd.Flags().IntVar(&queryBudget, "budget", 0, "context budget in characters (0 uses CONTEXT_BUDGET)")
	queryCmd.Flags().StringVar(&querySession, "session", "", "conversation session id")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orchestrator.Query(cmd.Context(), orchestrator.QueryRequest{
		Question:  args[0],
		Namespace: queryNamespace,
		TopK:      queryTopK,
		Budget:    queryBudget,
		SessionID: querySession,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatAnswer(newStyles(), res))
	return nil
}

// formatAnswer renders the answer followed by its sources and any warnings.
func formatAnswer(s styles, res *orchestrator.QueryResult) string {
	var b strings.Builder
	b.WriteString(res.Answer)
	b.WriteString("\n")

	if len(res.Citations) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Title.Render("Sources"))
		b.WriteString("\n")
		for i, c := range res.Citations {
			fmt.Fprintf(&b, "  [%d] %s\n", i+1, s.Source.Render(c))
		}
	}
	if res.Degraded {
		b.WriteString(s.Warning.Render("answer built from partial context"))
		b.WriteString("\n")
	}
	for _, w := range res.Warnings {
		b.WriteString(s.Muted.Render("  " + w))
		b.WriteString("\n")
	}
	return b.String()
}
