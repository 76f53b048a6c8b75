package correlator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

// Email is the subset of an inbound message the correlator needs.
type Email struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// identifierPhrases capture the run token from subject or body text.
var identifierPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)output\s+from\s+run\s*\(\s*([A-Za-z0-9_-]+)\s*\)`),
	regexp.MustCompile(`(?i)chain\s*run\s*(?:identifier|id)\b\s*[:#]?\s*([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`(?i)\brun\s*(?:identifier|id)\b\s*[:#]\s*([A-Za-z0-9_-]+)`),
}

// IdentifierFromText returns the first run token found in the texts, in order.
func IdentifierFromText(texts ...string) string {
	for _, re := range identifierPhrases {
		for _, t := range texts {
			if m := re.FindStringSubmatch(t); len(m) == 2 {
				return m[1]
			}
		}
	}
	return ""
}

// ParseEmail reads an RFC 5322 message. Input that is not a valid message is
// treated as plain text, with a leading "Subject:" line honoured.
func ParseEmail(raw string) Email {
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return parsePlain(raw)
	}
	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		subject = msg.Header.Get("Subject")
	}
	e := Email{Subject: strings.TrimSpace(subject)}
	if addr, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		e.From = addr.Name
		if e.From == "" {
			e.From = addr.Address
		}
	}
	e.Body = strings.TrimSpace(readBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body))
	return e
}

func parsePlain(raw string) Email {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var e Email
	if len(lines) > 0 && strings.HasPrefix(strings.ToLower(lines[0]), "subject:") {
		e.Subject = strings.TrimSpace(lines[0][len("subject:"):])
		lines = lines[1:]
	}
	e.Body = strings.TrimSpace(strings.Join(lines, "\n"))
	return e
}

// readBody returns the text/plain content, walking multipart bodies when needed.
// An HTML-only body is flattened to text.
func readBody(contentType, encoding string, r io.Reader) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		mr := multipart.NewReader(r, params["boundary"])
		var fallback string
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			text := readBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if strings.HasPrefix(part.Header.Get("Content-Type"), "text/plain") || part.Header.Get("Content-Type") == "" {
				return text
			}
			if fallback == "" {
				fallback = text
			}
		}
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	b, _ := io.ReadAll(io.LimitReader(r, 4<<20))
	if mediaType == "text/html" {
		return HTMLToText(string(b))
	}
	return string(b)
}

// DecodeEmail builds an Event from an email ingress body. JSON bodies of the
// form {"from","subject","body"} (or "text") are accepted as well as raw
// messages.
func DecodeEmail(body []byte) Event {
	var e Email
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc struct {
			Email
			Text string `json:"text"`
			Raw  string `json:"raw"`
		}
		if err := json.Unmarshal(trimmed, &doc); err == nil {
			e = doc.Email
			if e.Body == "" {
				e.Body = doc.Text
			}
			if doc.Raw != "" && e.Body == "" && e.Subject == "" {
				e = ParseEmail(doc.Raw)
			}
		} else {
			e = ParseEmail(string(body))
		}
	} else {
		e = ParseEmail(string(body))
	}
	return Event{
		Channel:    ledger.SourceEmail,
		Identifier: IdentifierFromText(e.Subject, e.Body),
		Content:    strings.TrimSpace(e.Body),
		AgentName:  e.From,
		Raw:        string(body),
	}
}
