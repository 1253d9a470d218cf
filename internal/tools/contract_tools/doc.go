// Package contract_tools exposes the mail to contract pipeline as MCP tools.
//
// Every MCP client gets its own pipeline session, keyed by its MCP session
// id. The tools follow the pipeline order:
//
//   - mail_connect: open a mailbox over IMAP or the Gmail API and list it
//   - mail_list: list the newest messages again
//   - mail_select: fetch one message and show its attachments
//   - contract_generate: extract, summarize and render the contract
//   - contract_download: return the document as an embedded resource
//   - mail_disconnect: close the connection and drop all results
//
// Calling a tool out of order returns a tool error naming the step that
// has to run first.
package contract_tools
