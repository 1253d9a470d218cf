package gmail

import (
	"encoding/base64"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{
			name:     "normal filename",
			filename: "document.pdf",
			want:     "document.pdf",
		},
		{
			name:     "filename with forward slash",
			filename: "path/to/document.pdf",
			want:     "path_to_document.pdf",
		},
		{
			name:     "filename with backslash",
			filename: "path\\to\\document.pdf",
			want:     "path_to_document.pdf",
		},
		{
			name:     "filename with parent directory",
			filename: "../../../etc/passwd",
			want:     "______etc_passwd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.filename); got != tt.want {
				t.Errorf("SanitizeFilename() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeData(t *testing.T) {
	payload := []byte("hello?>world~")
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"url padded", base64.URLEncoding.EncodeToString(payload), false},
		{"url unpadded", base64.RawURLEncoding.EncodeToString(payload), false},
		{"standard alphabet", base64.StdEncoding.EncodeToString(payload), false},
		{"garbage", "!!!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeData(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeData() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeData() error = %v", err)
			}
			if string(got) != string(payload) {
				t.Errorf("decodeData() = %q, want %q", got, payload)
			}
		})
	}
}

func TestMessageBody(t *testing.T) {
	enc := base64.URLEncoding.EncodeToString

	tests := []struct {
		name    string
		payload *gmail.MessagePart
		want    string
	}{
		{
			name:    "nil payload",
			payload: nil,
			want:    "",
		},
		{
			name: "single part plain",
			payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: enc([]byte("plain body"))},
			},
			want: "plain body",
		},
		{
			name: "plain attachment is not the body",
			payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "text/plain",
						Filename: "a.txt",
						Headers:  []*gmail.MessagePartHeader{{Name: "Content-Disposition", Value: "attachment"}},
						Body:     &gmail.MessagePartBody{Data: enc([]byte("file"))},
					},
					{
						MimeType: "text/plain",
						Body:     &gmail.MessagePartBody{Data: enc([]byte("real body"))},
					},
				},
			},
			want: "real body",
		},
		{
			name: "html fallback",
			payload: &gmail.MessagePart{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: enc([]byte("<p>hi</p>"))},
			},
			want: "hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := messageBody(tt.payload)
			if err != nil {
				t.Fatalf("messageBody() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("messageBody() = %q, want %q", got, tt.want)
			}
		})
	}
}
