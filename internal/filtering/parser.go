package filtering

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ListFormat names the syntax of a blocklist source.
type ListFormat int

const (
	FormatAuto ListFormat = iota // sniff the format from the first non-comment line
	FormatDomains
	FormatHosts
	FormatAdblock
)

// scannerBufCap/scannerMaxLine size the bufio.Scanner buffer so unusually
// long blocklist lines don't trip bufio.ErrTooLong.
const (
	scannerBufCap  = 64 * 1024
	scannerMaxLine = 1024 * 1024
)

// Parser turns blocklist text (Adblock, hosts-file, or plain domain list
// syntax) into a DomainTrie.
type Parser struct {
	IgnoreComments bool
	TrimWhitespace bool
	// Timeout bounds ParseURL's HTTP fetch, in milliseconds.
	Timeout int
}

// NewParser returns a Parser with comment-skipping, whitespace-trimming,
// and a 60s fetch timeout.
func NewParser() *Parser {
	return &Parser{IgnoreComments: true, TrimWhitespace: true, Timeout: 60000}
}

// SetTimeout overrides the HTTP fetch timeout, in milliseconds.
func (p *Parser) SetTimeout(ms int) {
	p.Timeout = ms
}

// ParseFile reads and parses the blocklist at path.
func (p *Parser) ParseFile(path string, format ListFormat) (*DomainTrie, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return p.Parse(file, format)
}

// ParseURL fetches and parses a remote blocklist.
func (p *Parser) ParseURL(url string, format ListFormat) (*DomainTrie, error) {
	timeout := time.Duration(p.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	resp, err := (&http.Client{Timeout: timeout}).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}
	return p.Parse(resp.Body, format)
}

// Parse reads lines from r, extracting one domain (and its wildcard scope)
// per line according to format. FormatAuto is resolved once, from the
// first line that sniffing can classify, and then held for the rest of the
// stream.
func (p *Parser) Parse(r io.Reader, format ListFormat) (*DomainTrie, error) {
	trie := NewDomainTrie()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerBufCap), scannerMaxLine)

	for scanner.Scan() {
		line := scanner.Text()
		if p.TrimWhitespace {
			line = strings.TrimSpace(line)
		}
		if line == "" {
			continue
		}
		if format == FormatAuto {
			format = sniffFormat(line)
		}
		if domain, wildcard := p.parseLine(line, format); domain != "" {
			trie.Add(domain, wildcard)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	return trie, nil
}

// sniffFormat guesses a blocklist's syntax from a representative line.
// Comment lines report FormatAuto back so the caller keeps sniffing on the
// next line instead of locking in a guess from a comment.
func sniffFormat(line string) ListFormat {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "#"), strings.HasPrefix(line, "!"):
		return FormatAuto
	case strings.HasPrefix(line, "||"):
		return FormatAdblock
	case strings.HasPrefix(line, "0.0.0.0"), strings.HasPrefix(line, "127.0.0.1"):
		return FormatHosts
	default:
		return FormatDomains
	}
}

// parseLine extracts a domain and its wildcard scope from one line, having
// already stripped full-line comments where IgnoreComments applies.
func (p *Parser) parseLine(line string, format ListFormat) (string, bool) {
	if p.IgnoreComments && (strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!")) {
		return "", false
	}
	switch format {
	case FormatAdblock:
		return parseAdblockLine(line)
	case FormatHosts:
		return parseHostsLine(line)
	default:
		return parseDomainsLine(line)
	}
}

// parseAdblockLine handles Adblock Plus domain-blocking rules of the form
// "||domain^" or "||domain^$options"; anything else (whitelist "@@" rules,
// path-scoped or wildcard-scoped URL rules) is not a domain rule and is
// skipped. A matched rule always implies the wildcard (all-subdomains)
// scope, matching Adblock's own semantics.
func parseAdblockLine(line string) (string, bool) {
	if strings.HasPrefix(line, "@@") || !strings.HasPrefix(line, "||") {
		return "", false
	}

	domain := strings.TrimPrefix(line, "||")
	if idx := strings.IndexAny(domain, "^$"); idx >= 0 {
		domain = domain[:idx]
	}
	if strings.ContainsAny(domain, "/*") {
		return "", false
	}

	domain = normalizeDomain(domain)
	if !isValidDomain(domain) {
		return "", false
	}
	return domain, true
}

// parseHostsLine handles "0.0.0.0 domain" / "127.0.0.1 domain" hosts-file
// sinkhole entries, implying the wildcard (all-subdomains) scope like the
// other formats.
func parseHostsLine(line string) (string, bool) {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	if fields[0] != "0.0.0.0" && fields[0] != "127.0.0.1" {
		return "", false
	}

	domain := normalizeDomain(fields[1])
	if domain == "localhost" || domain == "localhost.localdomain" || !isValidDomain(domain) {
		return "", false
	}
	return domain, true
}

// parseDomainsLine handles a plain one-domain-per-line list, implying the
// wildcard (all-subdomains) scope.
func parseDomainsLine(line string) (string, bool) {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	domain := normalizeDomain(strings.TrimSpace(line))
	if !isValidDomain(domain) {
		return "", false
	}
	return domain, true
}

// isValidDomain applies a conservative RFC 1035 label syntax check: 1-253
// total octets, at least one dot, and every label 1-63 octets of
// alphanumerics/hyphens bounded by an alphanumeric on each end.
func isValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 || !strings.Contains(domain, ".") {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if !isAlphaNum(label[0]) || !isAlphaNum(label[len(label)-1]) {
			return false
		}
		for i := 0; i < len(label); i++ {
			if !isAlphaNum(label[i]) && label[i] != '-' {
				return false
			}
		}
	}
	return true
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ParseDomainsSlice builds a trie directly from a slice of domain strings
// (e.g. an admin-configured list), each registered with wildcard scope.
func (p *Parser) ParseDomainsSlice(domains []string) *DomainTrie {
	trie := NewDomainTrie()
	for _, domain := range domains {
		domain = normalizeDomain(domain)
		if isValidDomain(domain) {
			trie.Add(domain, true)
		}
	}
	return trie
}
