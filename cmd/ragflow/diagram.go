package main

import (
	"github.com/spf13/cobra"
)

var diagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Print the index and query state machines as Mermaid",
	Args:  cobra.NoArgs,
	RunE:  runDiagram,
}

func init() {
	rootCmd.AddCommand(diagramCmd)
}

func runDiagram(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	index, query := a.orchestrator.Diagrams()
	s := newStyles()
	cmd.Println(s.Title.Render("Index"))
	cmd.Println(index)
	cmd.Println(s.Title.Render("Query"))
	cmd.Println(query)
	return nil
}
