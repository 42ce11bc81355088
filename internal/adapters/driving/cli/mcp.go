package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the corpus to AI agents over MCP",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start a Model Context Protocol server backed by the local corpus.

Tools: ask, add_document, remove_document, end_conversation.
Resources: docqa://documents, docqa://documents/{id}, docqa://index/stats.

The server speaks JSON-RPC over stdio unless --port is given, in which case
it serves the streamable HTTP transport on that port.

Agent configuration example:
  {"mcpServers": {"docqa": {"command": "docqa", "args": ["mcp", "serve"]}}}`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

var mcpPort int

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if mcpPort < 0 || mcpPort > 65535 {
		return fmt.Errorf("invalid port %d", mcpPort)
	}
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Query:     queryService,
		Ingestion: ingestionService,
		Index:     indexService,
	}, version)
	if err != nil {
		return err
	}

	if mcpPort == 0 {
		return server.Run(cmd.Context())
	}
	// Stdout carries no protocol traffic in HTTP mode.
	fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost:%d\n", mcpPort)
	return server.RunHTTP(cmd.Context(), fmt.Sprintf(":%d", mcpPort))
}
