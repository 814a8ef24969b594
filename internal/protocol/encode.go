package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeHello builds a hello packet opening sessionID with the given client
// identity, language code, and session mode.
func EncodeHello(sessionID uint32, clientID, language string, mode uint8, timestamp uint32) ([]byte, error) {
	if len(clientID) > ClientIDSize {
		return nil, fmt.Errorf("client ID too long: %d bytes (max %d)", len(clientID), ClientIDSize)
	}

	if len(language) > LanguageSize {
		return nil, fmt.Errorf("language code too long: %d bytes (max %d)", len(language), LanguageSize)
	}

	if mode != ModeStreaming && mode != ModeChunked {
		return nil, fmt.Errorf("invalid session mode: 0x%02x", mode)
	}

	packet := make([]byte, HeaderSize+HelloPayloadSize)
	writeHeader(packet, PacketTypeHello, sessionID, 0)

	payload := packet[HeaderSize:]
	copy(payload[0:ClientIDSize], clientID)
	copy(payload[ClientIDSize:ClientIDSize+LanguageSize], language)
	payload[ClientIDSize+LanguageSize] = mode
	binary.BigEndian.PutUint32(payload[ClientIDSize+LanguageSize+1:], timestamp)

	return packet, nil
}

// EncodeAudio builds an audio packet for sessionID. flush sets the header
// flush flag; minSilenceMs and maxSilenceMs are the per-call segmentation
// parameters; pcm is little-endian PCM-16 audio.
func EncodeAudio(sessionID, sequence uint32, flush bool, minSilenceMs, maxSilenceMs uint16, pcm []byte) ([]byte, error) {
	total := HeaderSize + AudioPayloadHeaderSize + len(pcm)
	if total > 0xFFFF {
		return nil, fmt.Errorf("audio packet too large: %d bytes (max %d)", total, 0xFFFF)
	}

	var flags uint8
	if flush {
		flags |= FlagFlush
	}

	packet := make([]byte, total)
	writeHeader(packet, PacketTypeAudio, sessionID, flags)

	payload := packet[HeaderSize:]
	binary.BigEndian.PutUint32(payload[0:4], sequence)
	binary.BigEndian.PutUint16(payload[4:6], minSilenceMs)
	binary.BigEndian.PutUint16(payload[6:8], maxSilenceMs)
	copy(payload[AudioPayloadHeaderSize:], pcm)

	return packet, nil
}

// EncodeBye builds a bye packet finalizing sessionID.
func EncodeBye(sessionID uint32) []byte {
	packet := make([]byte, HeaderSize)
	writeHeader(packet, PacketTypeBye, sessionID, 0)
	return packet
}

func writeHeader(packet []byte, packetType uint8, sessionID uint32, flags uint8) {
	packet[0] = packetType
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], sessionID)
	packet[7] = flags
}
