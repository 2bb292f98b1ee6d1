package dns

// RRHeader is the owner/class/ttl triple shared by every resource record
// type. Type-specific fields (rdata) live on the concrete record type; the
// header is the same shape for all of them, so it is factored out rather
// than duplicated per type.
type RRHeader struct {
	Name  string
	Class RecordClass
	TTL   uint32
}

// NewRRHeader builds an RRHeader for a record owned by name, with the given
// class and TTL. name is stored as given; callers that need normalized
// comparison should pass it through NormalizeName first.
func NewRRHeader(name string, class RecordClass, ttl uint32) RRHeader {
	return RRHeader{Name: name, Class: class, TTL: ttl}
}
