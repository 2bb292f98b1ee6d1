package dns

// TXTRecord represents a TXT record (RFC 1035 Section 3.3.14): one or more
// character-strings, each up to 255 bytes.
type TXTRecord struct {
	H       RRHeader
	Strings []string
}

// NewTXTRecord builds a TXTRecord from a single string, splitting it across
// multiple character-strings on marshal if it exceeds 255 bytes.
func NewTXTRecord(h RRHeader, value string) *TXTRecord {
	return &TXTRecord{H: h, Strings: []string{value}}
}

func (r *TXTRecord) Type() RecordType     { return TypeTXT }
func (r *TXTRecord) Header() RRHeader     { return r.H }
func (r *TXTRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes each string as a length-prefixed character-string,
// splitting any string over 255 bytes into multiple chunks.
func (r *TXTRecord) MarshalRData() ([]byte, error) {
	return marshalTXT(r.Strings)
}

// ParseTXTRData parses TXT RDATA into its constituent character-strings.
func ParseTXTRData(msg []byte, off *int, rdlen int) (*TXTRecord, error) {
	if *off+rdlen > len(msg) {
		return nil, ErrDNSError
	}
	strs, err := parseTXTStrings(msg[*off : *off+rdlen])
	if err != nil {
		return nil, err
	}
	*off += rdlen
	return &TXTRecord{Strings: strs}, nil
}
