package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMail(t *testing.T) {
	tests := []struct {
		name    string
		event   MailEvent
		want    string
		wantErr bool
	}{
		{
			name:  "signup",
			event: MailEvent{Kind: MailSignupConfirmation, To: "a@nitc.ac.in", ActionURL: "http://x/verify?token=t"},
			want:  `subject="Confirm your signup"`,
		},
		{
			name:  "recovery",
			event: MailEvent{Kind: MailPasswordRecovery, To: "a@nitc.ac.in", ActionURL: "http://x/verify?type=recovery"},
			want:  `subject="Reset your password"`,
		},
		{
			name:    "unknown kind",
			event:   MailEvent{Kind: "newsletter"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			err := RenderMail(&b, tt.event)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(b.String(), tt.want) || !strings.Contains(b.String(), tt.event.ActionURL) {
				t.Errorf("unexpected outbox entry: %s", b.String())
			}
		})
	}
}

func TestHandleAppendsToOutbox(t *testing.T) {
	dir := t.TempDir()
	c := &MailConsumer{OutboxPath: filepath.Join(dir, "nested", "mail.log")}

	for i := 0; i < 2; i++ {
		body, _ := json.Marshal(MailEvent{Kind: MailSignupConfirmation, To: "a@nitc.ac.in", ActionURL: "http://x"})
		if err := c.handle(body); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if err := c.handle([]byte("{")); err == nil {
		t.Error("expected malformed message to fail")
	}

	data, err := os.ReadFile(c.OutboxPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("expected 2 outbox lines, got %d", n)
	}
}
