package mailproto

import (
	"context"

	"github.com/wneessen/go-mail"
)

// sendViaGoMail delivers one message over SMTP with STARTTLS and PLAIN
// auth. The connection opens on the first send and is reused for later
// sends until it fails or the adapter closes. Caller holds a.mu.
func (a *Adapter) sendViaGoMail(ctx context.Context, p smtpPayload) error {
	client, err := a.smtpClientLocked(ctx)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(a.cfg.From); err != nil {
		return err
	}
	if err := msg.To(p.To); err != nil {
		return err
	}
	if p.Cc != "" {
		if err := msg.Cc(p.Cc); err != nil {
			return err
		}
	}
	msg.Subject(p.Subject)

	contentType := mail.TypeTextPlain
	if p.MimeType == "text/html" {
		contentType = mail.TypeTextHTML
	}
	msg.SetBodyString(contentType, p.Body)

	// Thread replies off the original message's id when provided.
	if p.Headers != nil {
		if id := p.Headers["Message-ID"]; id != "" {
			msg.SetGenHeader(mail.HeaderInReplyTo, id)
			refs := p.Headers["References"]
			if refs != "" {
				refs += " "
			}
			msg.SetGenHeader(mail.HeaderReferences, refs+id)
		}
	}

	if err := client.Send(msg); err != nil {
		a.dropSMTPLocked()
		return err
	}
	return nil
}

// smtpClientLocked returns the connected SMTP client, dialing on first use.
func (a *Adapter) smtpClientLocked(ctx context.Context) (*mail.Client, error) {
	if a.smtpConn != nil {
		return a.smtpConn, nil
	}

	password, err := a.cfg.PasswordFunc()
	if err != nil {
		return nil, err
	}
	client, err := mail.NewClient(a.cfg.SMTPHost,
		mail.WithPort(a.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(a.cfg.Username),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, err
	}
	a.smtpConn = client
	return client, nil
}

func (a *Adapter) dropSMTPLocked() {
	if a.smtpConn != nil {
		_ = a.smtpConn.Close()
		a.smtpConn = nil
	}
}
