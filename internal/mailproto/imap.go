package mailproto

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// dialIMAPTLS opens an authenticated IMAP session over TLS.
func (a *Adapter) dialIMAPTLS() (imapSession, error) {
	password, err := a.cfg.PasswordFunc()
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", a.cfg.IMAPHost, a.cfg.IMAPPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, err
	}
	if err := c.Login(a.cfg.Username, password); err != nil {
		_ = c.Logout()
		return nil, err
	}
	return c, nil
}

// imapList returns id/envelope summaries for the newest messages in a
// folder, newest first.
func imapList(s imapSession, folder string, maxResults int) (map[string]interface{}, error) {
	mbox, err := s.Select(folder, true)
	if err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "selecting %s", folder)
	}
	if mbox.Messages == 0 {
		return map[string]interface{}{"folder": folder, "total": 0, "messages": []interface{}{}}, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(maxResults) {
		from = mbox.Messages - uint32(maxResults) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	ch := make(chan *imap.Message, maxResults)
	if err := s.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, ch); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "fetching envelopes")
	}

	messages := make([]interface{}, 0, maxResults)
	for msg := range ch {
		messages = append(messages, envelopeSummary(msg))
	}
	// Newest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return map[string]interface{}{
		"folder":   folder,
		"total":    int(mbox.Messages),
		"messages": messages,
	}, nil
}

// imapFetch returns one raw message by sequence number.
func imapFetch(s imapSession, id uint32) (map[string]interface{}, error) {
	if id == 0 {
		return nil, connector.E(connector.KindInvalidRequestSpec, "message_id must be positive")
	}
	if _, err := s.Select("INBOX", true); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "selecting INBOX")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	section := &imap.BodySectionName{}

	ch := make(chan *imap.Message, 1)
	if err := s.Fetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope}, ch); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "fetching message %d", id)
	}
	msg := <-ch
	if msg == nil {
		return nil, connector.E(connector.KindProtocolAction, "message %d not found", id)
	}

	out := envelopeSummary(msg)
	if body := msg.GetBody(section); body != nil {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, connector.Wrap(connector.KindProtocolAction, err, "reading message %d body", id)
		}
		out["raw"] = string(raw)
	}
	return out, nil
}

// imapSearch matches messages whose Subject contains the query.
func imapSearch(s imapSession, query string) (map[string]interface{}, error) {
	if _, err := s.Select("INBOX", true); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "selecting INBOX")
	}
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Subject", query)
	ids, err := s.Search(criteria)
	if err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "searching")
	}
	results := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		results = append(results, int(id))
	}
	return map[string]interface{}{"query": query, "message_ids": results}, nil
}

// imapMove copies the message to the destination, then deletes the
// original. If the delete fails after a successful copy, the message can
// exist in both folders; the error says so.
func imapMove(s imapSession, id uint32, destination string) (map[string]interface{}, error) {
	if id == 0 || destination == "" {
		return nil, connector.E(connector.KindInvalidRequestSpec, "move requires message_id and destination")
	}
	if _, err := s.Select("INBOX", false); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "selecting INBOX")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	if err := s.Copy(seqset, destination); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "copying message %d to %s", id, destination)
	}
	if err := expungeMessage(s, seqset); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err,
			"copy to %s succeeded but source delete failed; message %d may exist in both folders", destination, id)
	}
	return map[string]interface{}{"status": "moved", "message_id": int(id), "destination": destination}, nil
}

// imapDelete flags the message deleted and expunges.
func imapDelete(s imapSession, id uint32) (map[string]interface{}, error) {
	if id == 0 {
		return nil, connector.E(connector.KindInvalidRequestSpec, "message_id must be positive")
	}
	if _, err := s.Select("INBOX", false); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "selecting INBOX")
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	if err := expungeMessage(s, seqset); err != nil {
		return nil, connector.Wrap(connector.KindProtocolAction, err, "deleting message %d", id)
	}
	return map[string]interface{}{"status": "deleted", "message_id": int(id)}, nil
}

func expungeMessage(s imapSession, seqset *imap.SeqSet) error {
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.Store(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return err
	}
	return s.Expunge(nil)
}

func envelopeSummary(msg *imap.Message) map[string]interface{} {
	out := map[string]interface{}{"id": int(msg.SeqNum)}
	if env := msg.Envelope; env != nil {
		out["subject"] = env.Subject
		if len(env.From) > 0 {
			out["from"] = env.From[0].Address()
		}
		if !env.Date.IsZero() {
			out["date"] = env.Date.Format(time.RFC3339)
		}
	}
	return out
}
