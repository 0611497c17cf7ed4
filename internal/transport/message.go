package transport

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var htmlTag = regexp.MustCompile(`(?i)<(html|body|p|br|div|span|table|a|b|i|strong|em|ul|ol|li|h[1-6])\b[^>]*>`)

// IsHTML reports whether body looks like HTML markup rather than plain text.
func IsHTML(body string) bool {
	return htmlTag.MatchString(body)
}

// ParseAddressList parses a comma or semicolon separated address list.
// An empty input yields no addresses and no error.
func ParseAddressList(raw string) ([]*mail.Address, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ";", ","))
	if raw == "" {
		return nil, nil
	}
	list, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil, fmt.Errorf("parse address list %q: %w", raw, err)
	}
	return list, nil
}

// Compose renders msg as an RFC 5322 message with CRLF line endings.
// from must already be resolved; now stamps the Date header.
func Compose(msg Message, from *mail.Address, to, cc []*mail.Address, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}

	contentType := "text/plain; charset=UTF-8"
	if IsHTML(msg.Body) {
		contentType = "text/html; charset=UTF-8"
	}

	header("From", from.String())
	header("To", joinAddresses(to))
	if len(cc) > 0 {
		header("Cc", joinAddresses(cc))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Address)))
	header("MIME-Version", "1.0")
	header("Content-Type", contentType)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

func joinAddresses(list []*mail.Address) string {
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i+1 < len(address) {
		return address[i+1:]
	}
	return "localhost"
}
