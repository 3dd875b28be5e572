package wire

// Message type constants. API codes are fixed by the public protocol;
// peer codes are node-private integers, distinct from the API codes.
const (
	GossipAnnounce     uint16 = 500
	GossipNotify       uint16 = 501
	GossipNotification uint16 = 502
	GossipValidation   uint16 = 503

	PeerInit      uint16 = 600
	PeerVerify    uint16 = 601
	PeerOK        uint16 = 602
	PeerAnnounce  uint16 = 603
	PeerDiscover  uint16 = 604
	PeerBroadcast uint16 = 605
)

// Announce carries the shape shared by GOSSIP_ANNOUNCE and PEER_ANNOUNCE:
// `ttl:u8, reserved:u8, data_type:u16, data:bytes`.
type Announce struct {
	TTL      uint8
	DataType uint16
	Data     []byte
}

// Encode serializes the announce payload (without the frame header).
func (a *Announce) Encode() []byte {
	w := NewBinWriter()
	w.WriteU8(a.TTL)
	w.WriteU8(0) // reserved
	w.WriteU16BE(a.DataType)
	w.WriteBytes(a.Data)
	return w.Bytes()
}

// DecodeAnnounce parses an Announce payload.
func DecodeAnnounce(payload []byte) (*Announce, error) {
	r := NewBinReaderFromBuf(payload)
	ttl := r.ReadU8()
	_ = r.ReadU8() // reserved
	dt := r.ReadU16BE()
	data := r.ReadRest()
	if r.Err != nil {
		return nil, r.Err
	}
	return &Announce{TTL: ttl, DataType: dt, Data: data}, nil
}

// FingerprintTail returns the `data_type || data` slice that dedup
// fingerprints are computed over.
func (a *Announce) FingerprintTail() []byte {
	w := NewBinWriter()
	w.WriteU16BE(a.DataType)
	w.WriteBytes(a.Data)
	return w.Bytes()
}

// Notify is GOSSIP_NOTIFY's payload: `reserved:u16, data_type:u16`.
type Notify struct {
	DataType uint16
}

// Encode serializes the notify payload.
func (n *Notify) Encode() []byte {
	w := NewBinWriter()
	w.WriteU16BE(0) // reserved
	w.WriteU16BE(n.DataType)
	return w.Bytes()
}

// DecodeNotify parses a Notify payload.
func DecodeNotify(payload []byte) (*Notify, error) {
	r := NewBinReaderFromBuf(payload)
	_ = r.ReadU16BE() // reserved
	dt := r.ReadU16BE()
	if r.Err != nil {
		return nil, r.Err
	}
	return &Notify{DataType: dt}, nil
}

// Notification is GOSSIP_NOTIFICATION's payload:
// `message_id:u16, data_type:u16, data:bytes`.
type Notification struct {
	MessageID uint16
	DataType  uint16
	Data      []byte
}

// Encode serializes the notification payload.
func (n *Notification) Encode() []byte {
	w := NewBinWriter()
	w.WriteU16BE(n.MessageID)
	w.WriteU16BE(n.DataType)
	w.WriteBytes(n.Data)
	return w.Bytes()
}

// DecodeNotification parses a Notification payload.
func DecodeNotification(payload []byte) (*Notification, error) {
	r := NewBinReaderFromBuf(payload)
	id := r.ReadU16BE()
	dt := r.ReadU16BE()
	data := r.ReadRest()
	if r.Err != nil {
		return nil, r.Err
	}
	return &Notification{MessageID: id, DataType: dt, Data: data}, nil
}

// Validation is GOSSIP_VALIDATION's payload: `message_id:u16, flags:u16`,
// bit 0 of flags is the valid bit.
type Validation struct {
	MessageID uint16
	Flags     uint16
}

// Valid reports bit 0 of Flags.
func (v *Validation) Valid() bool { return v.Flags&0x1 != 0 }

// Encode serializes the validation payload.
func (v *Validation) Encode() []byte {
	w := NewBinWriter()
	w.WriteU16BE(v.MessageID)
	w.WriteU16BE(v.Flags)
	return w.Bytes()
}

// DecodeValidation parses a Validation payload.
func DecodeValidation(payload []byte) (*Validation, error) {
	r := NewBinReaderFromBuf(payload)
	id := r.ReadU16BE()
	flags := r.ReadU16BE()
	if r.Err != nil {
		return nil, r.Err
	}
	return &Validation{MessageID: id, Flags: flags}, nil
}

// Init is PEER_INIT's payload: `challenge:u64-be`.
type Init struct {
	Challenge uint64
}

// Encode serializes the init payload.
func (i *Init) Encode() []byte {
	w := NewBinWriter()
	w.WriteU64BE(i.Challenge)
	return w.Bytes()
}

// DecodeInit parses an Init payload.
func DecodeInit(payload []byte) (*Init, error) {
	r := NewBinReaderFromBuf(payload)
	c := r.ReadU64BE()
	if r.Err != nil {
		return nil, r.Err
	}
	return &Init{Challenge: c}, nil
}

// Verify is PEER_VERIFY's payload:
// `reserved:u16, listening_port:u16, nonce:u64-be`.
type Verify struct {
	ListeningPort uint16
	Nonce         uint64
}

// Encode serializes the verify payload.
func (v *Verify) Encode() []byte {
	w := NewBinWriter()
	w.WriteU16BE(0) // reserved
	w.WriteU16BE(v.ListeningPort)
	w.WriteU64BE(v.Nonce)
	return w.Bytes()
}

// DecodeVerify parses a Verify payload.
func DecodeVerify(payload []byte) (*Verify, error) {
	r := NewBinReaderFromBuf(payload)
	_ = r.ReadU16BE() // reserved
	port := r.ReadU16BE()
	nonce := r.ReadU64BE()
	if r.Err != nil {
		return nil, r.Err
	}
	return &Verify{ListeningPort: port, Nonce: nonce}, nil
}

// Broadcast is PEER_BROADCAST's payload: a UTF-8 comma-separated list of
// `addr:port` strings.
type Broadcast struct {
	Addresses []string
}

// Encode serializes the broadcast payload.
func (b *Broadcast) Encode() []byte {
	s := ""
	for i, a := range b.Addresses {
		if i > 0 {
			s += ","
		}
		s += a
	}
	return []byte(s)
}

// DecodeBroadcast parses a Broadcast payload, splitting on commas. An
// empty payload decodes to zero addresses.
func DecodeBroadcast(payload []byte) (*Broadcast, error) {
	if len(payload) == 0 {
		return &Broadcast{}, nil
	}
	s := string(payload)
	var addrs []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			addrs = append(addrs, s[start:i])
			start = i + 1
		}
	}
	return &Broadcast{Addresses: addrs}, nil
}
