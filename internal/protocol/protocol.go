package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants
const (
	// Packet types
	PacketTypeHello = 0x01 // opens or updates a session
	PacketTypeAudio = 0x02 // sequenced audio chunk
	PacketTypeBye   = 0x03 // finalizes a session

	// Header flags
	FlagFlush = 0x01 // caller requests a flush after this audio chunk

	// Session modes carried in the hello payload
	ModeStreaming = 0x01 // VAD-gated segmentation
	ModeChunked   = 0x02 // transcribe every chunk unconditionally

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	HelloPayloadSize       = 85 // 64 + 16 + 1 + 4 bytes
	AudioPayloadHeaderSize = 8  // 4 + 2 + 2 bytes

	// Field sizes in the hello payload
	ClientIDSize  = 64
	LanguageSize  = 16
	TimestampSize = 4
)

// Header represents the 8-byte TLV packet header
// Layout: [PacketType:1][PacketLen:2][SessionID:4][Flags:1]
type Header struct {
	PacketType uint8  // 0x01=Hello, 0x02=Audio, 0x03=Bye
	PacketLen  uint16 // Total packet size (header + payload)
	SessionID  uint32 // Unique session identifier
	Flags      uint8  // Bit 0: flush request (audio packets only)
}

// HelloPayload represents the 85-byte session-open payload
// Layout: [ClientID:64][Language:16][Mode:1][Timestamp:4]
type HelloPayload struct {
	ClientID  [ClientIDSize]byte // Null-terminated string (64 bytes)
	Language  [LanguageSize]byte // Null-terminated language code (16 bytes)
	Mode      uint8              // 0x01=streaming, 0x02=chunked
	Timestamp uint32             // Unix timestamp (4 bytes)
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][MinSilenceMs:2][MaxSilenceMs:2][AudioData:N]
type AudioPayload struct {
	Sequence     uint32 // Chunk sequence number
	MinSilenceMs uint16 // Silence span that ends an utterance
	MaxSilenceMs uint16 // Idle span before silence compaction
	AudioData    []byte // PCM-16 audio data (variable length)
}

// ParsedPacket represents a fully parsed TLV packet
type ParsedPacket struct {
	Header *Header
	Hello  *HelloPayload // Only set for hello packets
	Audio  *AudioPayload // Only set for audio packets
}

// ParseHeader parses the 8-byte TLV packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		SessionID:  binary.BigEndian.Uint32(data[3:7]),
		Flags:      data[7],
	}

	return header, nil
}

// ParseHelloPayload parses the 85-byte session-open payload
func ParseHelloPayload(data []byte) (*HelloPayload, error) {
	if len(data) < HelloPayloadSize {
		return nil, fmt.Errorf("hello payload too short: expected %d bytes, got %d",
			HelloPayloadSize, len(data))
	}

	payload := &HelloPayload{}

	copy(payload.ClientID[:], data[0:ClientIDSize])
	copy(payload.Language[:], data[ClientIDSize:ClientIDSize+LanguageSize])
	payload.Mode = data[ClientIDSize+LanguageSize]

	timestampOffset := ClientIDSize + LanguageSize + 1
	payload.Timestamp = binary.BigEndian.Uint32(data[timestampOffset : timestampOffset+TimestampSize])

	if payload.Mode != ModeStreaming && payload.Mode != ModeChunked {
		return nil, fmt.Errorf("invalid session mode: 0x%02x", payload.Mode)
	}

	return payload, nil
}

// ParseAudioPayload parses the audio packet payload
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence:     binary.BigEndian.Uint32(data[0:4]),
		MinSilenceMs: binary.BigEndian.Uint16(data[4:6]),
		MaxSilenceMs: binary.BigEndian.Uint16(data[6:8]),
	}

	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParsePacket parses a complete TLV packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeHello:
		payload, err := ParseHelloPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hello payload: %w", err)
		}
		packet.Hello = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	case PacketTypeBye:
		// Bye carries no payload.

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	expectedPayloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeHello:
		if expectedPayloadSize != HelloPayloadSize {
			return fmt.Errorf("hello packet payload size mismatch: expected %d, got %d",
				HelloPayloadSize, expectedPayloadSize)
		}
	case PacketTypeAudio:
		if expectedPayloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, expectedPayloadSize)
		}
	case PacketTypeBye:
		if expectedPayloadSize != 0 {
			return fmt.Errorf("bye packet must not carry a payload, got %d bytes", expectedPayloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeHello || ptype == PacketTypeAudio || ptype == PacketTypeBye
}

// FlushRequested reports whether the flush flag is set on the header.
func (h *Header) FlushRequested() bool {
	return h.Flags&FlagFlush != 0
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetClientID extracts the client ID as a string
func (p *HelloPayload) GetClientID() string {
	return ExtractString(p.ClientID[:])
}

// GetLanguage extracts the language code as a string
func (p *HelloPayload) GetLanguage() string {
	return ExtractString(p.Language[:])
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeHello:
		packetType = "Hello"
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeBye:
		packetType = "Bye"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, SessionID:%d, Flags:0x%02x}",
		packetType, h.PacketLen, h.SessionID, h.Flags)
}

// String returns a human-readable representation of the hello payload
func (p *HelloPayload) String() string {
	return fmt.Sprintf("HelloPayload{ClientID:%q, Language:%q, Mode:0x%02x, Timestamp:%d}",
		p.GetClientID(), p.GetLanguage(), p.Mode, p.Timestamp)
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, MinSilenceMs:%d, MaxSilenceMs:%d, AudioDataLen:%d}",
		a.Sequence, a.MinSilenceMs, a.MaxSilenceMs, len(a.AudioData))
}
