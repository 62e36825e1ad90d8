package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/storage"
)

type capturedMail struct {
	addr string
	auth sasl.Client
	from string
	to   []string
	body []byte
}

func newTestMailer(t *testing.T, sendErr error, maxAttachments int) (*Mailer, *storage.MemoryObjectStore, *capturedMail) {
	t.Helper()
	objects := storage.NewMemoryObjectStore()
	m := NewMailer(config.SMTPConfig{
		Host:           "smtp.example.com",
		Port:           587,
		Username:       "bot@example.com",
		Password:       "secret",
		From:           "photos@example.com",
		MaxAttachments: maxAttachments,
	}, objects)

	captured := &capturedMail{}
	m.send = func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error {
		captured.addr, captured.auth, captured.from, captured.to = addr, auth, from, to
		captured.body, _ = io.ReadAll(r)
		return sendErr
	}
	return m, objects, captured
}

type parsedMail struct {
	subject     string
	text        string
	attachments []string
}

func parseMail(t *testing.T, raw []byte) parsedMail {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader() error = %v", err)
	}
	var out parsedMail
	out.subject, _ = mr.Header.Subject()
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, _ := io.ReadAll(p.Body)
			out.text = strings.ReplaceAll(string(b), "\r\n", "\n")
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			out.attachments = append(out.attachments, name)
		}
	}
	return out
}

func TestSendComposesMessage(t *testing.T) {
	ctx := context.Background()
	m, objects, captured := newTestMailer(t, nil, 10)
	objects.PutObject(ctx, "originals/o/1_a.jpg", []byte("jpeg-a"), "image/jpeg")
	objects.PutObject(ctx, "originals/o/2_b.png", []byte("png-b"), "image/png")

	res, err := m.Send(ctx, Delivery{
		Recipient:  "Grandma <grandma@example.com>",
		PersonName: "Dad",
		Photos: []PhotoRef{
			{Filename: "a.jpg", AssetKey: "originals/o/1_a.jpg"},
			{Filename: "b.png", AssetKey: "originals/o/2_b.png", ContentType: "image/png"},
			{Filename: "gone.jpg", AssetKey: "originals/o/missing"},
		},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Attached != 2 {
		t.Errorf("Attached = %d, want 2", res.Attached)
	}
	if captured.addr != "smtp.example.com:587" || captured.from != "photos@example.com" {
		t.Errorf("envelope = %s from %s", captured.addr, captured.from)
	}
	if len(captured.to) != 1 || captured.to[0] != "grandma@example.com" {
		t.Errorf("to = %v", captured.to)
	}
	if captured.auth == nil {
		t.Error("expected SASL auth when a username is configured")
	}

	got := parseMail(t, captured.body)
	if got.subject != "Photos of Dad" {
		t.Errorf("subject = %q", got.subject)
	}
	if got.text != "Hi,\n\nAttached: 2 photo(s) of Dad.\n" {
		t.Errorf("text = %q", got.text)
	}
	if len(got.attachments) != 2 || got.attachments[0] != "a.jpg" || got.attachments[1] != "b.png" {
		t.Errorf("attachments = %v", got.attachments)
	}
}

func TestSendCapsAttachments(t *testing.T) {
	ctx := context.Background()
	m, objects, captured := newTestMailer(t, nil, 3)

	var refs []PhotoRef
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("originals/o/%d.jpg", i)
		objects.PutObject(ctx, key, []byte("x"), "image/jpeg")
		refs = append(refs, PhotoRef{Filename: fmt.Sprintf("%d.jpg", i), AssetKey: key})
	}

	res, err := m.Send(ctx, Delivery{Recipient: "x@example.com", PersonName: "Mum", Photos: refs, Message: "Enjoy"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Attached != 3 {
		t.Errorf("Attached = %d, want 3", res.Attached)
	}
	got := parseMail(t, captured.body)
	if len(got.attachments) != 3 || got.text != "Enjoy" {
		t.Errorf("parsed = %+v", got)
	}
}

func TestSendWithoutPhotosStillSends(t *testing.T) {
	m, _, captured := newTestMailer(t, nil, 10)

	res, err := m.Send(context.Background(), Delivery{Recipient: "x@y.com", PersonName: "Dad"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Attached != 0 || len(captured.body) == 0 {
		t.Errorf("res = %+v, body len = %d", res, len(captured.body))
	}
}

func TestSendErrors(t *testing.T) {
	m, _, _ := newTestMailer(t, errors.New("550 mailbox unavailable"), 10)

	_, err := m.Send(context.Background(), Delivery{Recipient: "x@y.com", PersonName: "Dad"})
	if !errors.Is(err, ErrDelivery) {
		t.Errorf("Send() error = %v, want ErrDelivery", err)
	}

	_, err = m.Send(context.Background(), Delivery{Recipient: "not an address", PersonName: "Dad"})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("Send() error = %v, want ErrInvalidRecipient", err)
	}
}
