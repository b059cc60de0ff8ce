package email

import (
	"bufio"
	"bytes"
	"fmt"
	"mime"
	"net/textproto"
	"strings"
	"time"
)

// TemplateHeader carries the template id of a rendered message so sinks can
// index it without parsing the body.
const TemplateHeader = "X-Template-ID"

// Message is a rendered email. Body is plain text unless HTML is set.
type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	HTML       bool
	TemplateID string
	Date       time.Time
}

// Bytes returns the message in RFC 5322 form with UTF-8 headers and body.
func (m Message) Bytes() []byte {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if m.TemplateID != "" {
		fmt.Fprintf(&b, "%s: %s\r\n", TemplateHeader, m.TemplateID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	contentType := "text/plain"
	if m.HTML {
		contentType = "text/html"
	}
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"UTF-8\"\r\n", contentType)
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return b.Bytes()
}

// templateID reads TemplateHeader back from a raw message.
func templateID(raw []byte) string {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	header, err := r.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return ""
	}
	return header.Get(TemplateHeader)
}

// body returns everything after the header block.
func body(raw []byte) string {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return string(raw[i+4:])
	}
	return string(raw)
}
