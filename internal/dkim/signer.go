package dkim

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"
)

// Options selects the key and identity used for signing.
type Options struct {
	Selector string
	// Domain overrides the domain taken from the sender address.
	Domain string
	// KeyPath is read when PrivateKey is empty.
	KeyPath    string
	PrivateKey string
}

// Enabled reports whether any DKIM setting was provided.
func (o Options) Enabled() bool {
	return o.Selector != "" || o.Domain != "" || o.KeyPath != "" || o.PrivateKey != ""
}

// Signer applies DKIM signatures to outgoing messages.
// A nil *Signer is valid and leaves messages untouched.
type Signer struct {
	domain     string
	selector   string
	key        crypto.Signer
	headerKeys []string
}

// New builds a Signer from opts. It returns nil, nil when nothing is configured.
func New(opts Options) (*Signer, error) {
	if !opts.Enabled() {
		return nil, nil
	}
	if opts.Selector == "" {
		return nil, fmt.Errorf("dkim: DKIM_SELECTOR is required when enabling DKIM")
	}

	var pemData []byte
	switch {
	case opts.PrivateKey != "":
		pemData = []byte(opts.PrivateKey)
	case opts.KeyPath != "":
		data, err := os.ReadFile(opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("dkim: read private key: %w", err)
		}
		pemData = data
	default:
		return nil, fmt.Errorf("dkim: provide DKIM_KEY_PATH or DKIM_PRIVATE_KEY")
	}

	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}

	return &Signer{
		domain:   strings.ToLower(opts.Domain),
		selector: opts.Selector,
		key:      key,
		headerKeys: []string{
			"from",
			"to",
			"cc",
			"subject",
			"date",
			"mime-version",
			"content-type",
			"message-id",
		},
	}, nil
}

// Selector returns the configured selector.
func (s *Signer) Selector() string {
	if s == nil {
		return ""
	}
	return s.selector
}

// Sign returns message with a DKIM-Signature header prepended. Messages that
// already carry a signature are returned unchanged.
func (s *Signer) Sign(message []byte, from string) ([]byte, error) {
	if s == nil || s.key == nil {
		return message, nil
	}
	if hasSignature(message) {
		return message, nil
	}

	domain := s.domain
	if domain == "" {
		domain = extractDomain(from)
	}
	if domain == "" {
		return nil, fmt.Errorf("dkim: unable to determine signing domain")
	}

	opts := &msgauthdkim.SignOptions{
		Domain:                 domain,
		Selector:               s.selector,
		Signer:                 s.key,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
		HeaderKeys:             s.headerKeys,
	}

	var signed bytes.Buffer
	if err := msgauthdkim.Sign(&signed, bytes.NewReader(normalizeLineEndings(message)), opts); err != nil {
		return nil, fmt.Errorf("dkim: signing failed: %w", err)
	}
	return signed.Bytes(), nil
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			return key, nil
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			if signer, ok := key.(crypto.Signer); ok {
				return signer, nil
			}
			return nil, fmt.Errorf("unsupported private key type in PKCS#8 container")
		}
		pemData = rest
	}
	return nil, fmt.Errorf("no private key found in PEM data")
}

func extractDomain(address string) string {
	address = strings.TrimSpace(address)
	if i := strings.LastIndex(address, "<"); i >= 0 {
		address = strings.TrimSuffix(address[i+1:], ">")
	}
	if i := strings.LastIndex(address, "@"); i >= 0 && i+1 < len(address) {
		return strings.ToLower(address[i+1:])
	}
	return ""
}

func hasSignature(message []byte) bool {
	upper := bytes.ToUpper(message)
	return bytes.Contains(upper, []byte("\nDKIM-SIGNATURE:")) || bytes.HasPrefix(upper, []byte("DKIM-SIGNATURE:"))
}

func normalizeLineEndings(data []byte) []byte {
	if bytes.Contains(data, []byte("\r\n")) || !bytes.Contains(data, []byte("\n")) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n"))
}
