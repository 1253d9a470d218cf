package contract_tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailcontract/internal/config"
	"github.com/teemow/mailcontract/internal/contract"
	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
	"github.com/teemow/mailcontract/internal/server"
	"github.com/teemow/mailcontract/internal/session"
	"github.com/teemow/mailcontract/internal/tools/common"
)

// previewRunes bounds the body preview returned by mail_select.
const previewRunes = 500

// RegisterContractTools registers the mail to contract pipeline tools with
// the MCP server.
func RegisterContractTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	connectTool := mcp.NewTool("mail_connect",
		mcp.WithDescription("Connect to a Gmail mailbox and list its newest messages. Any earlier connection of this client is closed first."),
		mcp.WithString("method",
			mcp.Description("Connection method: 'imap' (address and app password) or 'gmail' (stored OAuth token). Defaults to the configured method."),
			mcp.Enum(string(mailbox.MethodIMAP), string(mailbox.MethodGmail)),
		),
		mcp.WithString("email",
			mcp.Description("Mailbox address. Defaults to the configured address."),
		),
		mcp.WithString("app_password",
			mcp.Description("Gmail app password for the imap method. Defaults to the configured password."),
		),
		mcp.WithString("account",
			mcp.Description("Name of the stored OAuth token for the gmail method (default: configured account)."),
		),
		mcp.WithString("mailbox",
			mcp.Description("IMAP folder to list (default: INBOX). 'ALL' selects the all-mail folder."),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Number of messages to list, %d to %d (default: %d).",
				mailbox.MinFetchLimit, mailbox.MaxFetchLimit, mailbox.DefaultFetchLimit)),
		),
	)
	s.AddTool(connectTool, common.InstrumentedToolHandler("mail_connect", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleConnect(ctx, request, sc)
		}))

	listTool := mcp.NewTool("mail_list",
		mcp.WithDescription("List the newest messages of the connected mailbox again."),
		mcp.WithNumber("limit",
			mcp.Description("Number of messages to list (default: the limit given to mail_connect)."),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("mail_list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleList(ctx, request, sc)
		}))

	selectTool := mcp.NewTool("mail_select",
		mcp.WithDescription("Fetch a message by id and make it the current message. Shows its headers, a body preview and its attachments."),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id as shown by mail_connect or mail_list"),
		),
	)
	s.AddTool(selectTool, common.InstrumentedToolHandler("mail_select", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSelect(ctx, request, sc)
		}))

	generateTool := mcp.NewTool("contract_generate",
		mcp.WithDescription("Extract attachment text, summarize the selected message and render the contract document."),
		mcp.WithString("format",
			mcp.Description("Document format: 'docx' (default), 'markdown' or 'html'."),
			mcp.Enum(string(contract.FormatDOCX), string(contract.FormatMarkdown), string(contract.FormatHTML)),
		),
	)
	s.AddTool(generateTool, common.InstrumentedToolHandler("contract_generate", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerate(ctx, request, sc)
		}))

	downloadTool := mcp.NewTool("contract_download",
		mcp.WithDescription("Return the generated contract document as an embedded resource."),
	)
	s.AddTool(downloadTool, common.InstrumentedToolHandler("contract_download", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDownload(ctx, request, sc)
		}))

	disconnectTool := mcp.NewTool("mail_disconnect",
		mcp.WithDescription("Close the mailbox connection of this client and drop all results."),
	)
	s.AddTool(disconnectTool, common.InstrumentedToolHandler("mail_disconnect", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDisconnect(ctx, request, sc)
		}))

	return nil
}

// SessionHooks returns server hooks that release the pipeline session of a
// client when its MCP session ends.
func SessionHooks(sc *server.ServerContext) *mcpserver.Hooks {
	hooks := &mcpserver.Hooks{}
	hooks.AddOnUnregisterSession(func(ctx context.Context, cs mcpserver.ClientSession) {
		if err := sc.Sessions().Remove(cs.SessionID()); err != nil {
			sc.Logger().Warn("failed to close session", logging.Session(cs.SessionID()), logging.Err(err))
		}
	})
	return hooks
}

// connectRequest builds the connect request from the tool arguments,
// falling back to the configured defaults.
func connectRequest(args map[string]interface{}, sc *server.ServerContext) (mailbox.ConnectRequest, error) {
	return sc.Config().ConnectRequest(sc.Context(), config.ConnectParams{
		Method:      common.StringArg(args, "method"),
		Address:     common.StringArg(args, "email"),
		AppPassword: common.StringArg(args, "app_password"),
		Mailbox:     common.StringArg(args, "mailbox"),
		Account:     common.StringArg(args, "account"),
		Limit:       common.IntArg(args, "limit", 0),
	})
}

func handleConnect(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	req, err := connectRequest(request.GetArguments(), sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess := common.SessionFor(ctx, sc)
	summaries, err := sess.Connect(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to connect: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Connected via %s.\n", req.Credentials.Method)
	writeSummaries(&b, summaries)
	return mcp.NewToolResultText(b.String()), nil
}

func handleList(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	limit := common.IntArg(request.GetArguments(), "limit", 0)

	summaries, err := common.SessionFor(ctx, sc).List(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list messages: %v", err)), nil
	}

	var b strings.Builder
	writeSummaries(&b, summaries)
	return mcp.NewToolResultText(b.String()), nil
}

func handleSelect(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(common.StringArg(request.GetArguments(), "message_id"))
	if id == "" {
		return mcp.NewToolResultError("message_id is required"), nil
	}

	sess := common.SessionFor(ctx, sc)
	msg, err := sess.Select(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to select message: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.Date.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "\n%s\n", mailbox.Preview(msg.Body, previewRunes))
	if len(msg.Attachments) > 0 {
		b.WriteString("\nAttachments:\n")
		for _, a := range msg.Attachments {
			fmt.Fprintf(&b, "- %s (%s, %d bytes)\n", a.Filename, a.ContentType, a.Size())
		}
	}
	writeNotices(&b, sess.TakeNotices())
	return mcp.NewToolResultText(b.String()), nil
}

func handleGenerate(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	format, err := contract.ParseFormat(common.StringArg(request.GetArguments(), "format"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess := common.SessionFor(ctx, sc)
	doc, err := sess.Generate(ctx, format)
	notices := sess.TakeNotices()
	if errors.Is(err, session.ErrNoContent) {
		return mcp.NewToolResultError("No text to summarize."), nil
	}
	if err != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Failed to generate contract: %v\n", err)
		writeNotices(&b, notices)
		return mcp.NewToolResultError(b.String()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contract generated: %s (%d bytes). Use contract_download to fetch it.\n", doc.Filename, len(doc.Data))
	fmt.Fprintf(&b, "\nSummary:\n%s\n", sess.Summary())
	writeNotices(&b, notices)
	return mcp.NewToolResultText(b.String()), nil
}

func handleDownload(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	doc, err := common.SessionFor(ctx, sc).Download()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("No contract to download: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("%s (%d bytes, %s)", doc.Filename, len(doc.Data), doc.Format)),
			mcp.NewEmbeddedResource(mcp.BlobResourceContents{
				URI:      "contract:///" + doc.Filename,
				MIMEType: doc.ContentType,
				Blob:     base64.StdEncoding.EncodeToString(doc.Data),
			}),
		},
	}, nil
}

func handleDisconnect(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if err := sc.Sessions().Remove(common.SessionKey(ctx)); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Disconnected with error: %v", err)), nil
	}
	return mcp.NewToolResultText("Disconnected."), nil
}

func writeSummaries(b *strings.Builder, summaries []mailbox.MessageSummary) {
	if len(summaries) == 0 {
		b.WriteString("No messages found.\n")
		return
	}
	fmt.Fprintf(b, "%d messages (newest first):\n", len(summaries))
	for i, m := range summaries {
		fmt.Fprintf(b, "%s [id: %s]\n", m.Label(i+1), m.ID)
	}
}

func writeNotices(b *strings.Builder, notices []session.Notice) {
	if len(notices) == 0 {
		return
	}
	b.WriteString("\nNotices:\n")
	for _, n := range notices {
		fmt.Fprintf(b, "- %s\n", n)
	}
}
