package dns

import "fmt"

// SSHFPRecord represents an SSH public key fingerprint record (RFC 4255).
type SSHFPRecord struct {
	H           RRHeader
	Algorithm   uint8
	FPType      uint8
	Fingerprint []byte
}

// NewSSHFPRecord builds an SSHFPRecord.
func NewSSHFPRecord(h RRHeader, algorithm, fpType uint8, fingerprint []byte) *SSHFPRecord {
	return &SSHFPRecord{H: h, Algorithm: algorithm, FPType: fpType, Fingerprint: fingerprint}
}

func (r *SSHFPRecord) Type() RecordType     { return TypeSSHFP }
func (r *SSHFPRecord) Header() RRHeader     { return r.H }
func (r *SSHFPRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes ALGORITHM, FP TYPE, then the raw fingerprint.
func (r *SSHFPRecord) MarshalRData() ([]byte, error) {
	out := make([]byte, 2+len(r.Fingerprint))
	out[0] = r.Algorithm
	out[1] = r.FPType
	copy(out[2:], r.Fingerprint)
	return out, nil
}

// ParseSSHFPRData parses SSHFP RDATA.
func ParseSSHFPRData(msg []byte, off *int, rdlen int) (*SSHFPRecord, error) {
	if rdlen < 2 || *off+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: truncated SSHFP RDATA", ErrDNSError)
	}
	rdata := msg[*off : *off+rdlen]
	fp := make([]byte, rdlen-2)
	copy(fp, rdata[2:])
	*off += rdlen
	return &SSHFPRecord{Algorithm: rdata[0], FPType: rdata[1], Fingerprint: fp}, nil
}
