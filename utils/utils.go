package utils

import (
	"fmt"
	"strings"
)

func BoolToString(b bool) string {
	if b {
		return "connected"
	}
	return "disconnected"
}

// HexString renders bytes as "30 31 32 3D".
func HexString(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	hexStr := make([]string, len(data))
	for i, b := range data {
		hexStr[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(hexStr, " ")
}

// ASCIICodes returns the decimal code of every byte.
func ASCIICodes(data []byte) []int {
	codes := make([]int, len(data))
	for i, b := range data {
		codes[i] = int(b)
	}
	return codes
}

// Printable escapes control and non-ASCII bytes so a chunk can be shown inline.
func Printable(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		switch {
		case b >= 32 && b <= 126:
			sb.WriteByte(b)
		case b == '\n':
			sb.WriteString("\\n")
		case b == '\r':
			sb.WriteString("\\r")
		case b == '\t':
			sb.WriteString("\\t")
		default:
			fmt.Fprintf(&sb, "\\x%02X", b)
		}
	}
	return sb.String()
}

func FormatDataForLog(data []byte) string {
	if len(data) == 0 {
		return "no data"
	}

	hasText := false
	for _, b := range data {
		if b >= 32 && b <= 126 {
			hasText = true
			break
		}
	}

	// Чисто бинарные данные показываем в hex
	if !hasText {
		return fmt.Sprintf("[%s] (%d bytes)", HexString(data), len(data))
	}
	return fmt.Sprintf("%q [%s] (%d bytes)", Printable(data), HexString(data), len(data))
}
