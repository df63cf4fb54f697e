// Package pix serializes payment requests into the BR Code payload
// consumed by scanning apps: an ordered sequence of tag/length/value
// fields closed by a CRC16-CCITT checksum. The encoder is pure and
// bit-exact: identical inputs always produce identical payloads.
package pix

import (
	"fmt"
	"strconv"
)

const (
	gui          = "br.gov.bcb.pix"
	defaultTxID  = "dede"
	maxNameLen   = 25
	maxCityLen   = 15
	maxTxIDLen   = 25
	currencyBRL  = "986"
	countryBR    = "BR"
	categoryNone = "0000"
)

type Params struct {
	Key          string
	MerchantName string
	MerchantCity string
	Amount       float64
	TxID         string
}

// Payload builds the complete payment-code string for p. Field order and
// formatting are fixed by the wire contract; the trailing four characters
// are the uppercase hex CRC over everything before them.
func Payload(p Params) string {
	txid := p.TxID
	if txid == "" {
		txid = defaultTxID
	}

	base := field("00", "01") + // payload format indicator
		field("01", "12") + // point of initiation: dynamic, amount-bearing
		field("26", field("00", gui)+field("01", p.Key)) +
		field("52", categoryNone) +
		field("53", currencyBRL) +
		field("54", strconv.FormatFloat(p.Amount, 'f', 2, 64)) +
		field("58", countryBR) +
		field("59", truncate(p.MerchantName, maxNameLen)) +
		field("60", truncate(p.MerchantCity, maxCityLen)) +
		field("62", field("05", truncate(txid, maxTxIDLen))) +
		"6304"

	return base + Checksum(base)
}

// Checksum computes CRC16-CCITT (poly 0x1021, init 0xFFFF) over payload,
// one byte per character, and renders it as 4 uppercase hex digits.
func Checksum(payload string) string {
	crc := 0xFFFF
	for i := 0; i < len(payload); i++ {
		crc ^= int(payload[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
			crc &= 0xFFFF
		}
	}
	return fmt.Sprintf("%04X", crc)
}

// field renders tag + zero-padded 2-digit length + value. The length
// header counts the value's bytes, computed after truncation.
func field(tag string, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
