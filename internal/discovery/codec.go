// Package discovery builds the DNS-SD style query used to time multicast discovery.
package discovery

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxMessageSize bounds every encoded query.
	MaxMessageSize = 64
	maxLabelLength = 63
	headerSize     = 12

	flagsStandardQuery = 0x0100
	typePTR            = 0x000C
	classIN            = 0x0001

	// DefaultServiceName is the operational service browsed by default.
	DefaultServiceName = "_matter._tcp.local"
)

var (
	ErrEmptyName      = errors.New("discovery: service name is empty")
	ErrLabelTooLong   = errors.New("discovery: label exceeds 63 bytes")
	ErrMessageTooLong = fmt.Errorf("discovery: message exceeds %d bytes", MaxMessageSize)
)

// Encode builds a single-question PTR query for serviceName.
// The transaction id is always zero so repeated calls yield identical bytes.
func Encode(serviceName string) ([]byte, error) {
	labels := splitLabels(serviceName)
	if len(labels) == 0 {
		return nil, ErrEmptyName
	}

	size := headerSize + 1 + 4
	for _, label := range labels {
		if len(label) > maxLabelLength {
			return nil, fmt.Errorf("%w: %q", ErrLabelTooLong, label)
		}
		size += 1 + len(label)
	}
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %q needs %d", ErrMessageTooLong, serviceName, size)
	}

	msg := make([]byte, headerSize, size)
	binary.BigEndian.PutUint16(msg[0:2], 0)
	binary.BigEndian.PutUint16(msg[2:4], flagsStandardQuery)
	binary.BigEndian.PutUint16(msg[4:6], 1)
	// answer, authority and additional counts stay zero

	for _, label := range labels {
		msg = append(msg, byte(len(label)))
		msg = append(msg, label...)
	}
	msg = append(msg, 0)
	msg = binary.BigEndian.AppendUint16(msg, typePTR)
	msg = binary.BigEndian.AppendUint16(msg, classIN)
	return msg, nil
}

// MustEncode is Encode for names known at compile time.
func MustEncode(serviceName string) []byte {
	msg, err := Encode(serviceName)
	if err != nil {
		panic(err)
	}
	return msg
}

func splitLabels(name string) []string {
	parts := strings.Split(strings.TrimSpace(name), ".")
	labels := parts[:0]
	for _, p := range parts {
		if p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}
