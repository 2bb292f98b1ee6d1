// Package server implements DNS protocol servers for UDP and TCP.
//
// Goroutine Model:
//
// The server spawns multiple goroutines for handling incoming queries:
//   - UDPServer: 1 receiver + N workers per CPU core
//   - TCPServer: 1 listener per CPU core + 1 handler per active connection
//
// All goroutines are coordinated through a shared context:
//   - Context is cancelled on shutdown signal (SIGINT/SIGTERM)
//   - All goroutines check context regularly and exit cleanly
//   - No long-lived blocking operations without context awareness
//
// Error Handling:
//
// Errors are wrapped with context using fmt.Errorf("...: %w", err) throughout.
// This preserves error chains while adding operational context.
package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jroosing/hydradns/internal/database"
	"github.com/jroosing/hydradns/internal/ddns"
	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/resolvers"
)

// QueryHandler processes DNS queries through a resolver and handles
// timeouts and error conditions.
type QueryHandler struct {
	Logger   *slog.Logger       // Optional logger for debug output
	Resolver resolvers.Resolver // The resolver chain to process queries
	Timeout  time.Duration      // Maximum time for query resolution (default: 4s)

	Limiter *RateLimiter  // Optional; denied requests get a synthesized NXDOMAIN
	DDNS    *ddns.Processor // Optional; handles OPCODE=5 UPDATE messages
	Stats   *DNSStats       // Optional query/response counters
	QueryLog *QueryLogWriter // Optional durable query log

	// ZoneTransfer serves AXFR/IXFR requests (qtype 252/251), per
	// spec.md §4.9. Optional; when nil, transfer requests are refused.
	ZoneTransfer resolvers.ZoneTransferer
}

// HandleResult contains the outcome of query processing.
type HandleResult struct {
	ResponseBytes []byte     // Serialized DNS response
	Source        string     // Origin of response (cache, upstream, error type)
	Parsed        dns.Packet // Parsed request (if ParsedOK is true)
	ParsedOK      bool       // Whether the request was successfully parsed

	// TransferBytes holds a sequence of independently-framed DNS messages
	// for an AXFR/IXFR response (SOA, records, repeat-SOA). When non-empty,
	// callers must write each message as its own length-prefixed frame
	// instead of using ResponseBytes.
	TransferBytes [][]byte
}

// Handle processes a DNS request and returns a response.
//
// Processing steps:
//  1. Parse the raw request bytes
//  2. Forward to resolver with timeout
//  3. Handle errors: FORMERR for parse errors, SERVFAIL for timeout and resolver failure
//  4. Log request details at debug level
//
// The context is checked for cancellation (e.g., server shutdown).
func (h *QueryHandler) Handle(ctx context.Context, transport string, src string, reqBytes []byte) HandleResult {
	if h.Stats != nil {
		h.Stats.RecordQuery(transport)
	}
	start := time.Now()
	res := h.handle(ctx, transport, src, reqBytes)
	if h.Stats != nil {
		h.Stats.RecordLatency(time.Since(start).Nanoseconds())
	}
	return res
}

func (h *QueryHandler) handle(ctx context.Context, transport string, src string, reqBytes []byte) HandleResult {
	queryStart := time.Now()

	// OPCODE=5 (UPDATE) messages are dispatched to the DDNS processor
	// before any attempt to parse as a standard query, since
	// ParseRequestBounded rejects non-zero opcodes outright.
	if h.DDNS != nil && isUpdateOpcode(reqBytes) {
		return h.handleUpdate(reqBytes)
	}

	// Step 1: Parse request
	parsed, err := dns.ParseRequestBounded(reqBytes)
	if err != nil {
		h.recordResultStats("parse-error")
		return h.handleParseError(reqBytes)
	}

	// Extract question info for logging
	qname, qtype := extractQuestionInfo(parsed)

	// AXFR/IXFR (qtype 252/251) are zone transfers, not ordinary lookups:
	// they stream the whole zone as a sequence of independently-framed
	// messages instead of a single response, and RFC 5936 §4.2 forbids
	// serving them over UDP.
	if isZoneTransferType(qtype) {
		return h.handleZoneTransfer(ctx, transport, src, parsed, qname, qtype, len(reqBytes))
	}

	// Step 2: Rate limiting (C7), fail-closed: a denied client gets a
	// synthesized NXDOMAIN rather than a silently dropped connection.
	if h.Limiter != nil && !h.Limiter.Allow(src) {
		result := h.buildErrorResult(parsed, "rate-limited", dns.RCodeNXDomain)
		h.logRequest(ctx, transport, src, parsed, qname, qtype, len(reqBytes), result.Source)
		h.recordResultStats(result.Source)
		return HandleResult{ResponseBytes: result.ResponseBytes, Source: result.Source, Parsed: parsed, ParsedOK: true}
	}

	// Step 3: Resolve with timeout. The client IP rides the context so
	// resolvers deep in the chain (per-client filtering tiers) can reach
	// it without the Resolver interface needing a dedicated parameter.
	result := h.resolveWithTimeout(resolvers.WithClientIP(ctx, src), parsed, reqBytes)

	// Step 4: Log at debug level
	h.logRequest(ctx, transport, src, parsed, qname, qtype, len(reqBytes), result.Source)
	h.recordResultStats(result.Source)
	h.recordQueryLog(src, qname, qtype, result, queryStart)

	return HandleResult{
		ResponseBytes: result.ResponseBytes,
		Source:        result.Source,
		Parsed:        parsed,
		ParsedOK:      true,
	}
}

// recordQueryLog enqueues a durable log row for the completed query. It is
// a no-op when no QueryLog writer is configured, and never blocks the
// caller (see QueryLogWriter.Enqueue).
func (h *QueryHandler) recordQueryLog(src, qname string, qtype int, result resolvers.Result, start time.Time) {
	if h.QueryLog == nil {
		return
	}
	rcode := 0
	if len(result.ResponseBytes) >= 4 {
		off := 0
		if hdr, err := dns.ParseHeader(result.ResponseBytes, &off); err == nil {
			rcode = int(hdr.RCode())
		}
	}
	h.QueryLog.Enqueue(database.QueryLogEntry{
		Timestamp:      time.Now(),
		ClientIP:       src,
		QName:          qname,
		QType:          uint16(qtype),
		Blocked:        result.Blocked,
		BlockReason:    result.Reason,
		Cached:         strings.Contains(result.Source, "cache"),
		ResponseTimeMs: time.Since(start).Milliseconds(),
		RCode:          rcode,
	})
}

// handleUpdate runs an OPCODE=5 message through the DDNS processor. The
// processor always returns a fully-formed response packet (errors are
// surfaced as an RCODE, never a dropped connection).
func (h *QueryHandler) handleUpdate(reqBytes []byte) HandleResult {
	parsed, err := dns.ParsePacket(reqBytes)
	if err != nil {
		return h.handleParseError(reqBytes)
	}
	resp := h.DDNS.Process(parsed, reqBytes)
	b, err := resp.Marshal()
	if err != nil {
		h.recordResultStats("servfail")
		return HandleResult{ResponseBytes: nil, Source: "ddns-marshal-error", Parsed: parsed, ParsedOK: true}
	}
	source := "ddns"
	h.recordResultStats(source)
	return HandleResult{ResponseBytes: b, Source: source, Parsed: parsed, ParsedOK: true}
}

// recordResultStats updates the NXDOMAIN/error counters based on a
// resolution source tag.
func (h *QueryHandler) recordResultStats(source string) {
	if h.Stats == nil {
		return
	}
	switch source {
	case "rate-limited":
		h.Stats.RecordNXDOMAIN()
	case "servfail", "timeout", "shutdown", "parse-error", "formerr", "ddns-marshal-error", "refused":
		h.Stats.RecordError()
	}
}

// isZoneTransferType reports whether qtype is AXFR (252) or IXFR (251).
func isZoneTransferType(qtype int) bool {
	return qtype == int(dns.TypeAXFR) || qtype == int(dns.TypeIXFR)
}

// handleZoneTransfer serves an AXFR/IXFR request. UDP transport is refused
// per RFC 5936 §4.2; otherwise the configured ZoneResolver streams the
// zone, or the request is refused if no zone matches.
func (h *QueryHandler) handleZoneTransfer(
	ctx context.Context,
	transport, src string,
	parsed dns.Packet,
	qname string,
	qtype int,
	reqLen int,
) HandleResult {
	if transport == "udp" || h.ZoneTransfer == nil {
		result := h.buildErrorResult(parsed, "refused", dns.RCodeRefused)
		h.logRequest(ctx, transport, src, parsed, qname, qtype, reqLen, result.Source)
		h.recordResultStats(result.Source)
		return HandleResult{ResponseBytes: result.ResponseBytes, Source: result.Source, Parsed: parsed, ParsedOK: true}
	}

	frames, ok := h.ZoneTransfer.BuildTransfer(parsed)
	if !ok {
		result := h.buildErrorResult(parsed, "refused", dns.RCodeRefused)
		h.logRequest(ctx, transport, src, parsed, qname, qtype, reqLen, result.Source)
		h.recordResultStats(result.Source)
		return HandleResult{ResponseBytes: result.ResponseBytes, Source: result.Source, Parsed: parsed, ParsedOK: true}
	}

	source := "axfr"
	if qtype == int(dns.TypeIXFR) {
		source = "ixfr"
	}
	h.logRequest(ctx, transport, src, parsed, qname, qtype, reqLen, source)
	h.recordResultStats(source)
	return HandleResult{TransferBytes: frames, Source: source, Parsed: parsed, ParsedOK: true}
}

// isUpdateOpcode reports whether the raw message's header OPCODE field is 5
// (UPDATE), without fully parsing the message.
func isUpdateOpcode(reqBytes []byte) bool {
	off := 0
	hdr, err := dns.ParseHeader(reqBytes, &off)
	if err != nil {
		return false
	}
	return hdr.Opcode() == dns.OpcodeUpdate
}

// handleParseError attempts to build an error response from a malformed request.
// Returns FORMERR if the header/question could be extracted, or nil if not.
func (h *QueryHandler) handleParseError(reqBytes []byte) HandleResult {
	resp := tryBuildErrorFromRaw(reqBytes, uint16(dns.RCodeFormErr))
	if resp == nil {
		return HandleResult{ResponseBytes: nil, Source: "parse-error", ParsedOK: false}
	}
	return HandleResult{ResponseBytes: resp, Source: "formerr", ParsedOK: false}
}

// extractQuestionInfo extracts the QNAME and QTYPE from a parsed request.
func extractQuestionInfo(parsed dns.Packet) (string, int) {
	qname := "<no-question>"
	qtype := -1
	if len(parsed.Questions) > 0 {
		qname = parsed.Questions[0].Name
		qtype = int(parsed.Questions[0].Type)
	}
	return qname, qtype
}

// resolveWithTimeout runs the resolver with a timeout.
// Returns SERVFAIL on timeout, cancellation, or resolver error.
//
// Design note: This spawns a goroutine per query to enforce timeout without blocking
// the worker pool. An alternative design would make resolvers context-aware and timeout
// internally, but that would require all resolver implementations to handle context
// cancellation correctly. The current approach keeps timeout enforcement isolated here.
//
// Goroutine lifecycle: Spawned per query, exits when the resolver returns
// (success or error). On timeout or cancellation the handler stops waiting;
// the channel is buffered, so the late send does not block and the
// goroutine still exits. The channel is never closed.
func (h *QueryHandler) resolveWithTimeout(ctx context.Context, parsed dns.Packet, reqBytes []byte) resolvers.Result {
	// Start resolver in background
	resCh := make(chan struct {
		res resolvers.Result
		err error
	}, 1)
	go func() {
		res, err := h.Resolver.Resolve(ctx, parsed, reqBytes)
		resCh <- struct {
			res resolvers.Result
			err error
		}{res: res, err: err}
	}()

	// Set up timeout
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Wait for result, timeout, or cancellation
	select {
	case <-ctx.Done():
		return h.buildErrorResult(parsed, "shutdown", dns.RCodeServFail)
	case <-timer.C:
		return h.buildErrorResult(parsed, "timeout", dns.RCodeServFail)
	case r := <-resCh:
		if r.err != nil {
			return h.buildErrorResult(parsed, "servfail", dns.RCodeServFail)
		}
		return r.res
	}
}

// buildErrorResult builds an error response for a given parsed packet.
func (h *QueryHandler) buildErrorResult(parsed dns.Packet, source string, rcode dns.RCode) resolvers.Result {
	return resolvers.Result{
		ResponseBytes: mustMarshal(dns.BuildErrorResponse(parsed, uint16(rcode))),
		Source:        source,
	}
}

// logRequest logs DNS request details at debug level.
func (h *QueryHandler) logRequest(
	ctx context.Context,
	transport, src string,
	parsed dns.Packet,
	qname string,
	qtype int,
	reqLen int,
	source string,
) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	h.Logger.DebugContext(
		ctx,
		"dns request",
		"transport", transport,
		"src", src,
		"id", int(parsed.Header.ID),
		"qname", qname,
		"qtype", qtype,
		"bytes", reqLen,
		"source", source,
	)
}

// mustMarshal serializes a DNS packet, returning nil on error.
func mustMarshal(p dns.Packet) []byte {
	b, err := p.Marshal()
	if err != nil {
		return nil
	}
	return b
}

// tryBuildErrorFromRaw attempts to construct an error response from raw bytes.
// This is used when request parsing fails but we can still extract enough
// information (transaction ID, question) to build a valid error response.
//
// Returns nil if even the header cannot be parsed.
func tryBuildErrorFromRaw(reqBytes []byte, rcode uint16) []byte {
	off := 0
	h, err := dns.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil
	}

	// Try to include the question in the error response
	var questions []dns.Question
	if h.QDCount > 0 {
		q, err := dns.ParseQuestion(reqBytes, &off)
		if err == nil {
			questions = make([]dns.Question, 1)
			questions[0] = q
		}
	}

	p := dns.Packet{Header: dns.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	b, _ := dns.BuildErrorResponse(p, rcode).Marshal()
	return b
}
