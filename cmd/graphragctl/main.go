package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apiURL  string
		timeout time.Duration
		asJSON  bool
	)
	client := func() *apiClient {
		return newAPIClient(apiURL, &http.Client{Timeout: timeout})
	}

	defaultURL := os.Getenv("GRAPHRAG_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	root := &cobra.Command{
		Use:           "graphragctl",
		Short:         "Query and administer the construction document GraphRAG service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "API base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON")

	root.AddCommand(&cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question with cited sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := client().Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), answer)
			}
			printAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "route <question>",
		Short: "Show the routing decision and graph query for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := client().Route(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), preview)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "route: %s\n", preview.Decision.Kind)
			if preview.Decision.IsStructured() {
				fmt.Fprintf(out, "template: %s\n", preview.Decision.Template)
				for _, key := range sortedKeys(preview.Decision.Params) {
					fmt.Fprintf(out, "  %s = %s\n", key, preview.Decision.Params[key])
				}
				if preview.Query != nil {
					fmt.Fprintf(out, "cypher: %s\n", preview.Query.Cypher)
				}
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "expand <question>",
		Short: "List the query variants used for retrieval",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := client().Route(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), preview.Expansions)
			}
			for i, variant := range preview.Expansions {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, variant)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print index and graph sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vector chunks:  %d\n", stats.VectorChunks)
			fmt.Fprintf(out, "lexical chunks: %d\n", stats.LexicalChunks)
			fmt.Fprintf(out, "image chunks:   %d\n", stats.ImageChunks)
			fmt.Fprintf(out, "graph: %d nodes, %d relationships, %d documents\n",
				stats.Graph.Nodes, stats.Graph.Relationships, stats.Graph.Documents)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <document-id>...",
		Short: "Remove documents from every index, the graph and storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			for _, id := range args {
				if err := c.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	})

	return root
}

func printAnswer(out io.Writer, answer *domain.Answer) {
	fmt.Fprintln(out, answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nsources:")
	for _, src := range answer.Sources {
		label := src.Filename
		if src.Section != "" {
			label += " / " + src.Section
		}
		diagram := ""
		if src.IsDiagram {
			diagram = " (diagram)"
		}
		fmt.Fprintf(out, "  - %s p.%d%s score=%.4f\n", label, src.Page, diagram, src.Score)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
