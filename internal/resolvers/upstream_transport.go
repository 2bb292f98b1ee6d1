package resolvers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/helpers"
)

// upstreamTransport tags the wire protocol an upstream endpoint string
// selects, per spec.md §4.4/§9's "dynamic dispatch over heterogeneous
// upstream transports" note: a tagged variant rather than per-transport
// pipelines leaking into queryAndCache's failover loop.
type upstreamTransport int

const (
	transportUDP upstreamTransport = iota
	transportDoT
	transportDoH
)

// defaultDoTPort is RFC 7858's well-known DNS-over-TLS port.
const defaultDoTPort = "853"

// dohContentType is the media type RFC 8484 requires for wire-format DoH
// requests and responses.
const dohContentType = "application/dns-message"

// dohHTTPClient is shared across DoH upstreams; DialContext-level timeouts
// are applied per-request via context instead of a client-wide Timeout so
// a slow upstream cannot outlive the caller's deadline but also doesn't
// need a fresh client per call.
var dohHTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 8,
	},
}

// classifyUpstream inspects an upstream endpoint string and returns its
// transport plus the dial target (host:port for UDP/DoT, a full URL for
// DoH). Endpoints with no scheme prefix are plain UDP/TCP, matching the
// teacher's original bare-IP convention.
func classifyUpstream(up string) (upstreamTransport, string) {
	switch {
	case strings.HasPrefix(up, "tls://"):
		host := strings.TrimPrefix(up, "tls://")
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, defaultDoTPort)
		}
		return transportDoT, host
	case strings.HasPrefix(up, "https://"):
		return transportDoH, up
	default:
		return transportUDP, up
	}
}

// queryUpstreamDoT sends a query over DNS-over-TLS using the same 2-byte
// length-prefix framing as plain TCP (RFC 7858 section 3.1), just inside a
// TLS session. Grounded on queryUpstreamTCP's framing, with tls.DialWithContext
// in place of net.Dialer.
func queryUpstreamDoT(ctx context.Context, req []byte, hostport string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &tls.Dialer{Config: &tls.Config{MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("dot dial %s: %w", hostport, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(req)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen <= 0 || respLen > 65535 {
		return nil, fmt.Errorf("dot response length invalid: %d", respLen)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// queryUpstreamDoH implements the RFC 8484 dispatch order from spec.md
// §4.4: POST application/dns-message first, fall back to GET with the
// base64url-encoded "dns" parameter, and a JSON response shape (the
// Google/Cloudflare DoH JSON API) as a last resort when neither wire-format
// path succeeds.
func queryUpstreamDoH(ctx context.Context, req []byte, endpoint string, timeout time.Duration, question dns.Question) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if resp, err := dohPost(ctx, req, endpoint); err == nil {
		return resp, nil
	}

	if resp, err := dohGetWire(ctx, req, endpoint); err == nil {
		return resp, nil
	}

	return dohGetJSON(ctx, endpoint, question)
}

func dohPost(ctx context.Context, req []byte, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", dohContentType)
	httpReq.Header.Set("Accept", dohContentType)
	return doDoHRequest(httpReq)
}

func dohGetWire(ctx context.Context, req []byte, endpoint string) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("dns", base64.RawURLEncoding.EncodeToString(req))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", dohContentType)
	return doDoHRequest(httpReq)
}

func doDoHRequest(httpReq *http.Request) ([]byte, error) {
	resp, err := dohHTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh upstream returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, dns.MaxIncomingDNSMessageSize))
	if err != nil {
		return nil, err
	}
	if len(body) < dns.HeaderSize {
		return nil, errors.New("doh response too short")
	}
	return body, nil
}

// dohJSONResponse mirrors the Google/Cloudflare DoH JSON API shape.
type dohJSONResponse struct {
	Status int `json:"Status"`
	Answer []struct {
		Name string `json:"name"`
		Type uint16 `json:"type"`
		TTL  uint32 `json:"TTL"`
		Data string `json:"data"`
	} `json:"Answer"`
}

// dohGetJSON is the last-resort fallback: some DoH providers reject
// application/dns-message entirely but still answer the JSON API used by
// browsers. The result is re-synthesized into a wire-format response so it
// can flow through the same validateResponse/cache path as the other two
// transports.
func dohGetJSON(ctx context.Context, endpoint string, question dns.Question) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("name", question.Name)
	q.Set("type", strconv.Itoa(int(question.Type)))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/dns-json")

	resp, err := dohHTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh json upstream returned status %d", resp.StatusCode)
	}

	var parsed dohJSONResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, dns.MaxIncomingDNSMessageSize)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("doh json decode: %w", err)
	}

	return synthesizeFromJSON(question, parsed)
}

// synthesizeFromJSON builds a wire-format response packet from a decoded
// DoH JSON answer. Only the record types the JSON data field encodes as
// plain text (A, AAAA, CNAME, TXT) are reconstructed; anything else is
// dropped from the answer section rather than failing the whole response,
// since the JSON fallback only exists to keep A/AAAA-style lookups working
// when the wire-format paths are blocked.
func synthesizeFromJSON(question dns.Question, parsed dohJSONResponse) ([]byte, error) {
	pkt := dns.Packet{
		Header: dns.Header{
			Flags: dns.QRFlag | dns.RDFlag | dns.RAFlag | (uint16(parsed.Status) & dns.RCodeMask),
		},
		Questions: []dns.Question{question},
	}

	for _, a := range parsed.Answer {
		h := dns.NewRRHeader(dns.NormalizeName(a.Name), dns.ClassIN, a.TTL)
		switch dns.RecordType(a.Type) {
		case dns.TypeA:
			ip := net.ParseIP(a.Data).To4()
			if ip == nil {
				continue
			}
			pkt.Answers = append(pkt.Answers, dns.NewIPRecord(h, ip))
		case dns.TypeAAAA:
			ip := net.ParseIP(a.Data).To16()
			if ip == nil {
				continue
			}
			pkt.Answers = append(pkt.Answers, dns.NewIPRecord(h, ip))
		case dns.TypeCNAME:
			pkt.Answers = append(pkt.Answers, dns.NewNameRecord(h, dns.TypeCNAME, dns.NormalizeName(a.Data)))
		case dns.TypeTXT:
			pkt.Answers = append(pkt.Answers, dns.NewTXTRecord(h, strings.Trim(a.Data, "\"")))
		default:
			continue
		}
	}

	return pkt.Marshal()
}
