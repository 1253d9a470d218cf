// Package cmd implements the command-line interface for mailcontract.
//
// This package provides the following commands:
//   - auth: Authorize Gmail REST access (url, exchange, callback)
//   - list: List the newest messages of the configured mailbox
//   - show: Show one message with its attachments
//   - generate: Generate a contract document from one message
//   - shell: Run the connect, select, generate flow interactively
//   - serve: Start the MCP server to provide tools for AI assistants
//   - config show: Print the effective configuration with secrets redacted
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
