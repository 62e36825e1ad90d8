// Package delivery sends a person's photos to an email recipient.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/storage"
)

var (
	ErrDelivery         = errors.New("delivery failed")
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// PhotoRef points at one stored photo to attach.
type PhotoRef struct {
	Filename    string
	AssetKey    string
	ContentType string
}

type Delivery struct {
	Recipient  string
	PersonName string
	// Message replaces the default plain-text body when set.
	Message string
	Photos  []PhotoRef
}

type Result struct {
	Attached int
	Message  string
}

type sendFunc func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error

// Mailer composes a MIME message with the photos attached and hands it to an
// SMTP relay.
type Mailer struct {
	cfg     config.SMTPConfig
	objects storage.ObjectStore
	send    sendFunc
}

func NewMailer(cfg config.SMTPConfig, objects storage.ObjectStore) *Mailer {
	send := smtp.SendMail
	if cfg.Port == 465 {
		send = smtp.SendMailTLS
	}
	return &Mailer{cfg: cfg, objects: objects, send: send}
}

// Send delivers d. A delivery with no photos is still sent. On failure the
// returned Result still reports how many photos were attached.
func (m *Mailer) Send(ctx context.Context, d Delivery) (Result, error) {
	to, err := mail.ParseAddress(d.Recipient)
	if err != nil {
		return Result{}, fmt.Errorf("%w %q: %v", ErrInvalidRecipient, d.Recipient, err)
	}

	msg, attached, err := m.Compose(ctx, d, to)
	if err != nil {
		return Result{Attached: attached}, fmt.Errorf("%w: compose: %v", ErrDelivery, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{Attached: attached}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	var auth sasl.Client
	if m.cfg.Username != "" {
		auth = sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	}
	if err := m.send(m.cfg.Addr(), auth, m.from(), []string{to.Address}, bytes.NewReader(msg)); err != nil {
		return Result{Attached: attached}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	slog.Info("photos delivered", "recipient", to.Address, "person", d.PersonName, "attached", attached)
	return Result{Attached: attached, Message: fmt.Sprintf("sent %d photo(s) to %s", attached, to.Address)}, nil
}

func (m *Mailer) from() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return m.cfg.Username
}

// Compose builds the message: a plain-text part followed by at most
// MaxAttachments photos. Photos that cannot be read are skipped.
func (m *Mailer) Compose(ctx context.Context, d Delivery, to *mail.Address) ([]byte, int, error) {
	photos := d.Photos
	if limit := m.cfg.MaxAttachments; limit > 0 && len(photos) > limit {
		photos = photos[:limit]
	}

	type attachment struct {
		ref  PhotoRef
		data []byte
	}
	var attachments []attachment
	for _, ref := range photos {
		data, err := m.objects.GetObject(ctx, ref.AssetKey)
		if err != nil {
			slog.Warn("skip attachment", "key", ref.AssetKey, "error", err)
			continue
		}
		attachments = append(attachments, attachment{ref: ref, data: data})
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: m.from()}})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject("Photos of " + d.PersonName)
	if err := h.GenerateMessageID(); err != nil {
		return nil, 0, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, 0, fmt.Errorf("create writer: %w", err)
	}

	body := d.Message
	if body == "" {
		body = fmt.Sprintf("Hi,\n\nAttached: %d photo(s) of %s.\n", len(attachments), d.PersonName)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, 0, fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(tw, body); err != nil {
		return nil, 0, fmt.Errorf("write text part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, 0, fmt.Errorf("close text part: %w", err)
	}

	for _, a := range attachments {
		var ah mail.AttachmentHeader
		ah.SetContentType(contentType(a.ref), nil)
		ah.SetFilename(path.Base(a.ref.Filename))
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, 0, fmt.Errorf("create attachment: %w", err)
		}
		if _, err := w.Write(a.data); err != nil {
			return nil, 0, fmt.Errorf("write attachment: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, 0, fmt.Errorf("close attachment: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, 0, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), len(attachments), nil
}

func contentType(ref PhotoRef) string {
	if ref.ContentType != "" {
		return ref.ContentType
	}
	if t := mime.TypeByExtension(path.Ext(ref.Filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}
