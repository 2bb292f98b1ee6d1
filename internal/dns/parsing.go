package dns

import (
	"errors"
	"fmt"

	"github.com/jroosing/hydradns/internal/helpers"
)

// Resource limits applied to every incoming message before it reaches the
// query pipeline, so a hostile or malformed packet can't force unbounded
// parsing work.
const (
	MaxIncomingDNSMessageSize = 4096
	MaxQuestions              = 4
	MaxRRPerSection           = 100
	MaxTotalRR                = 200
)

var (
	errMessageTooLarge   = errors.New("dns message too large")
	errQRSetOnRequest    = errors.New("invalid packet: QR flag set (response packet received)")
	errTooManyQuestions  = errors.New("too many questions")
	errWrongQuestionCnt  = errors.New("unsupported question count")
	errTooManyRecords    = errors.New("too many resource records")
	errTooManyTotalRecs  = errors.New("too many total resource records")
)

// ParseRequestBounded parses msg as an incoming query, rejecting anything
// that isn't a plain standard query (QR=0, OPCODE=0) or that exceeds the
// resource limits above. A query is never accepted past this gate with a
// section count this server isn't prepared to answer.
func ParseRequestBounded(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Packet{}, errMessageTooLarge
	}
	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}
	if p.Header.Flags&QRFlag != 0 {
		return Packet{}, errQRSetOnRequest
	}
	if opcode := opcodeOf(p.Header.Flags); opcode != 0 {
		return Packet{}, fmt.Errorf("unsupported OpCode: %d", opcode)
	}
	if err := checkSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// opcodeOf extracts the 4-bit OPCODE from a header flags field (bits 14-11).
func opcodeOf(flags uint16) uint16 {
	return (flags & OpcodeMask) >> 11
}

// checkSectionCounts enforces the resource caps on a parsed header: exactly
// one question, and each RR section within the per-section and aggregate
// bounds.
func checkSectionCounts(h Header) error {
	if int(h.QDCount) > MaxQuestions {
		return errTooManyQuestions
	}
	if h.QDCount != 1 {
		return errWrongQuestionCnt
	}
	if int(h.ANCount) > MaxRRPerSection || int(h.NSCount) > MaxRRPerSection || int(h.ARCount) > MaxRRPerSection {
		return errTooManyRecords
	}
	if int(h.ANCount)+int(h.NSCount)+int(h.ARCount) > MaxTotalRR {
		return errTooManyTotalRecs
	}
	return nil
}

// BuildErrorResponse synthesizes a response to req carrying rcode and no
// records: the original question is echoed back (QDCOUNT unchanged), the
// QR bit is set, RD is carried over from the request, and RCODE is
// overwritten.
func BuildErrorResponse(req Packet, rcode uint16) Packet {
	return Packet{
		Header: Header{
			ID:      req.Header.ID,
			Flags:   errorResponseFlags(req.Header.Flags, rcode),
			QDCount: helpers.ClampIntToUint16(len(req.Questions)),
		},
		Questions: req.Questions,
	}
}

// errorResponseFlags sets QR, preserves RD from the request, and encodes
// rcode into the low 4 bits.
func errorResponseFlags(reqFlags, rcode uint16) uint16 {
	flags := QRFlag | (reqFlags & RDFlag)
	return (flags &^ RCodeMask) | (rcode & RCodeMask)
}
