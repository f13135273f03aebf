package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
	"github.com/cuemby/loom/pkg/client"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage and query indexes on a running Loom node",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an index from a schema file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		schemaFile, _ := cmd.Flags().GetString("schema-file")
		raw, err := os.ReadFile(schemaFile)
		if err != nil {
			return fmt.Errorf("read schema file: %w", err)
		}
		s, err := schema.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse schema: %w", err)
		}
		if err := c.CreateIndex(context.Background(), args[0], s); err != nil {
			return err
		}
		fmt.Printf("index %q created\n", args[0])
		return nil
	},
}

var indexSummaryCmd = &cobra.Command{
	Use:   "summary NAME",
	Short: "Show an index's name and opstamp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		s, err := c.Summary(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("name: %s\nopstamp: %d\n", s.Name, s.Opstamp)
		return nil
	},
}

var indexFlushCmd = &cobra.Command{
	Use:   "flush NAME",
	Short: "Force a commit on an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		return c.Flush(context.Background(), args[0])
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search NAME",
	Short: "Run a JSON query against an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		queryJSON, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")

		var q query.Query
		if queryJSON == "" {
			q.IsAll = true
		} else if err := json.Unmarshal([]byte(queryJSON), &q); err != nil {
			return fmt.Errorf("parse --query: %w", err)
		}

		results, err := c.Search(context.Background(), args[0], query.Search{Query: &q, Limit: limit})
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

var indexAddDocCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Index one document read from --doc or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		docJSON, _ := cmd.Flags().GetString("doc")
		commit, _ := cmd.Flags().GetBool("commit")

		raw := []byte(docJSON)
		if docJSON == "" {
			data, err := readAllStdin()
			if err != nil {
				return err
			}
			raw = data
		}
		return c.AddDocument(context.Background(), args[0], raw, commit)
	},
}

var indexBulkCmd = &cobra.Command{
	Use:   "bulk NAME",
	Short: "Stream NDJSON documents from a file into an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		file, _ := cmd.Flags().GetString("file")
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open %s: %w", file, err)
		}
		defer f.Close()
		return c.Bulk(context.Background(), args[0], f)
	},
}

var indexAllDocsCmd = &cobra.Command{
	Use:   "all NAME",
	Short: "Retrieve every document in an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFromFlags(cmd)
		results, err := c.AllDocs(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	indexCmd.AddCommand(indexCreateCmd, indexSummaryCmd, indexFlushCmd, indexSearchCmd, indexAddDocCmd, indexBulkCmd, indexAllDocsCmd)

	indexCmd.PersistentFlags().String("manager", "http://127.0.0.1:8080", "HTTP address of a Loom node")

	indexCreateCmd.Flags().String("schema-file", "", "Path to a JSON schema file (required)")
	indexSearchCmd.Flags().String("query", "", "JSON query body; empty means match-all")
	indexSearchCmd.Flags().Int("limit", query.DefaultLimit, "Maximum hits to return")
	indexAddDocCmd.Flags().String("doc", "", "JSON document body; empty reads from stdin")
	indexAddDocCmd.Flags().Bool("commit", true, "Commit immediately after indexing")
	indexBulkCmd.Flags().String("file", "", "Path to an NDJSON file (required)")
}

func clientFromFlags(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("manager")
	return client.NewClient(addr)
}

func readAllStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
