// Package mailproto executes protocol:// request specs over SMTP and IMAP.
// It is the only package that opens mail sessions; connectors only describe
// the action to perform.
package mailproto

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/wneessen/go-mail"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// Config locates the mail servers and account. The password is fetched
// through PasswordFunc at dial time so it never sits in config.
type Config struct {
	SMTPHost string
	SMTPPort int
	IMAPHost string
	IMAPPort int
	Username string
	From     string

	PasswordFunc func() (string, error)
}

// imapSession is the slice of go-imap's client the adapter uses. The
// concrete implementation dials on demand; tests substitute a fake.
type imapSession interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Store(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Copy(seqset *imap.SeqSet, dest string) error
	Expunge(ch chan uint32) error
	Logout() error
}

// Adapter routes protocol request specs to SMTP or IMAP. Sessions open
// lazily on first use and are reused across operations until they fail or
// the adapter closes.
type Adapter struct {
	cfg Config

	sendSMTP func(ctx context.Context, p smtpPayload) error
	dialIMAP func() (imapSession, error)

	mu       sync.Mutex
	closed   bool
	imapConn imapSession
	smtpConn *mail.Client
	logger   *log.Logger
}

// New builds an adapter with real SMTP and IMAP transports.
func New(cfg Config) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[MAILPROTO] ", log.LstdFlags),
	}
	a.sendSMTP = a.sendViaGoMail
	a.dialIMAP = a.dialIMAPTLS
	return a
}

// Execute runs one protocol request spec. Transport failures come back as
// responses with StatusCode 0, matching the proxy's error shape.
func (a *Adapter) Execute(ctx context.Context, r *connector.Result) *connector.Response {
	start := time.Now()

	if r.Body.Kind != connector.BodyProtocol {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID,
			connector.KindInvalidRequestSpec, "protocol adapter requires a protocol body")
	}
	payload := r.Body.Protocol
	action, _ := payload["action"].(string)

	var (
		body map[string]interface{}
		err  error
	)
	switch r.URL {
	case connector.URLProtocolSMTP:
		body, err = a.executeSMTP(ctx, action, payload)
	case connector.URLProtocolIMAP:
		body, err = a.executeIMAP(action, payload)
	default:
		err = connector.E(connector.KindInvalidRequestSpec, "unknown protocol url %q", r.URL)
	}

	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		a.logger.Printf("%s %s failed: %v", r.URL, action, err)
		resp := connector.ErrorResponse(r.ConnectorID, r.OperationID, connector.KindOf(err), "%v", err)
		resp.ElapsedMS = elapsed
		return resp
	}

	return &connector.Response{
		OperationID: r.OperationID,
		ConnectorID: r.ConnectorID,
		StatusCode:  200,
		Body:        body,
		ElapsedMS:   elapsed,
		Success:     true,
	}
}

// Close quits the SMTP connection and logs out of IMAP. Safe to call more
// than once; later Execute calls fail with a protocol error.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.dropIMAPLocked()
	a.dropSMTPLocked()
}

func (a *Adapter) executeSMTP(ctx context.Context, action string, payload map[string]interface{}) (map[string]interface{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, connector.E(connector.KindProtocolAction, "mail adapter is closed")
	}

	p := smtpPayloadFrom(payload)
	switch action {
	case "send", "reply":
		if err := a.sendSMTP(ctx, p); err != nil {
			return nil, connector.Wrap(connector.KindProtocolAction, err, "smtp %s", action)
		}
		return map[string]interface{}{"status": "sent", "to": p.To}, nil
	default:
		return nil, connector.E(connector.KindProtocolAction, "unknown smtp action %q", action)
	}
}

func (a *Adapter) executeIMAP(action string, payload map[string]interface{}) (map[string]interface{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, connector.E(connector.KindProtocolAction, "mail adapter is closed")
	}

	session, err := a.imapSessionLocked()
	if err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "imap dial")
	}

	var body map[string]interface{}
	switch action {
	case "list":
		body, err = imapList(session, stringField(payload, "folder", "INBOX"), intField(payload, "max_results", 20))
	case "fetch":
		body, err = imapFetch(session, uint32(intField(payload, "message_id", 0)))
	case "search":
		body, err = imapSearch(session, stringField(payload, "query", ""))
	case "move":
		body, err = imapMove(session, uint32(intField(payload, "message_id", 0)), stringField(payload, "destination", ""))
	case "delete":
		body, err = imapDelete(session, uint32(intField(payload, "message_id", 0)))
	default:
		return nil, connector.E(connector.KindProtocolAction, "unknown imap action %q", action)
	}
	if err != nil {
		// The session may be mid-protocol after a failure; drop it and
		// redial on the next operation.
		a.dropIMAPLocked()
	}
	return body, err
}

// imapSessionLocked returns the live session, dialing on first use.
func (a *Adapter) imapSessionLocked() (imapSession, error) {
	if a.imapConn != nil {
		return a.imapConn, nil
	}
	s, err := a.dialIMAP()
	if err != nil {
		return nil, err
	}
	a.imapConn = s
	return s, nil
}

func (a *Adapter) dropIMAPLocked() {
	if a.imapConn != nil {
		_ = a.imapConn.Logout()
		a.imapConn = nil
	}
}

// --- payload coercion ---

type smtpPayload struct {
	To       string
	Cc       string
	Subject  string
	Body     string
	MimeType string
	Headers  map[string]string
}

func smtpPayloadFrom(payload map[string]interface{}) smtpPayload {
	p := smtpPayload{
		To:       stringField(payload, "to", ""),
		Cc:       stringField(payload, "cc", ""),
		Subject:  stringField(payload, "subject", ""),
		Body:     stringField(payload, "body", ""),
		MimeType: stringField(payload, "mime_type", "text/plain"),
	}
	if h, ok := payload["headers"].(map[string]interface{}); ok {
		p.Headers = make(map[string]string, len(h))
		for k, v := range h {
			p.Headers[k] = fmt.Sprintf("%v", v)
		}
	}
	return p
}

func stringField(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intField(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
