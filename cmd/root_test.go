package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailcontract/internal/config"
)

func TestBindFlags(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantLimit int
		wantBox   string
	}{
		{"defaults come from the config layer", nil, 10, "INBOX"},
		{"flags override", []string{"--limit", "3", "--mailbox", "ALL"}, 3, "ALL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "list"}
			addMailFlags(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			v := config.NewViper()
			require.NoError(t, bindFlags(v, cmd))
			assert.Equal(t, tt.wantLimit, v.GetInt("mail.limit"))
			assert.Equal(t, tt.wantBox, v.GetString("mail.mailbox"))
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		debug     bool
		wantDebug bool
		want      string
	}{
		{"text", "text", false, false, "msg=hello"},
		{"json", "json", false, false, `"msg":"hello"`},
		{"debug", "text", true, true, "level=DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.format, tt.debug)
			logger.Debug("hello")
			logger.Info("hello")

			assert.Contains(t, buf.String(), tt.want)
			assert.Equal(t, tt.wantDebug, strings.Contains(buf.String(), "DEBUG"))
		})
	}
}

func TestGenerateDocs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runGenerateDocs(&buf))
	out := buf.String()

	for _, name := range []string{"mail_connect", "mail_list", "mail_select", "contract_generate", "contract_download", "mail_disconnect"} {
		assert.Contains(t, out, "### "+name)
	}
	assert.Contains(t, out, "## Mail Tools")
	assert.Contains(t, out, "## Contract Tools")
	assert.Contains(t, out, "- `message_id` (required):")
	assert.Contains(t, out, "One of: docx, markdown, html.")
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)
	assert.Equal(t, "mailcontract version "+version+"\n", buf.String())
}
