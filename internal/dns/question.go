package dns

import (
	"encoding/binary"
	"fmt"
)

// Question is one entry of a message's question section (RFC 1035 §4.1.2):
// the name being asked about, the RR type wanted, and the class (always IN
// for this server).
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// Marshal encodes q as NAME, TYPE(2), CLASS(2).
func (q Question) Marshal() ([]byte, error) {
	name, err := EncodeName(q.Name)
	if err != nil {
		return nil, err
	}
	tail := make([]byte, 4)
	binary.BigEndian.PutUint16(tail[0:2], q.Type)
	binary.BigEndian.PutUint16(tail[2:4], q.Class)
	return append(name, tail...), nil
}

// ParseQuestion reads one question entry from msg at *off, normalizing the
// owner name to lowercase, and advances *off past it.
func ParseQuestion(msg []byte, off *int) (Question, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Question{}, err
	}
	if *off+4 > len(msg) {
		return Question{}, fmt.Errorf("%w: unexpected EOF while reading DNS question", ErrDNSError)
	}
	q := Question{
		Name:  NormalizeName(name),
		Type:  binary.BigEndian.Uint16(msg[*off : *off+2]),
		Class: binary.BigEndian.Uint16(msg[*off+2 : *off+4]),
	}
	*off += 4
	return q, nil
}
