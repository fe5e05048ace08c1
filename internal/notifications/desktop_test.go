package notifications

import (
	"errors"
	"testing"
)

func TestDesktopSenderPassesPayload(t *testing.T) {
	var gotTitle, gotMessage string
	s := NewDesktopSender(nil)
	s.notify = func(title, message string, _ any) error {
		gotTitle, gotMessage = title, message

		return nil
	}

	s.Send(Payload{Title: "Web-888 - ready", Content: "sdr.local:8073"})

	if gotTitle != "Web-888 - ready" || gotMessage != "sdr.local:8073" {
		t.Fatalf("unexpected notification: %q / %q", gotTitle, gotMessage)
	}
}

func TestDesktopSenderSwallowsBackendErrors(t *testing.T) {
	s := NewDesktopSender(nil)
	s.notify = func(string, string, any) error { return errors.New("no dbus session") }

	s.Send(Payload{Title: "t", Content: "c"})
}

func TestSenderFunc(t *testing.T) {
	var got Payload
	var sender Sender = SenderFunc(func(p Payload) { got = p })
	sender.Send(Payload{Title: "x"})

	if got.Title != "x" {
		t.Fatalf("expected payload to be forwarded, got %+v", got)
	}
}
