// Package wire реализует кодирование строк для транспорта результатов.
// Найденные URL могут быть в произвольной однобайтовой кодировке и не обязаны
// быть валидным UTF-8, поэтому строки передаются как hex поверх экранированной
// байтовой формы и восстанавливаются без потерь.
package wire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tempizhere/gotracker/internal/models"
)

// ErrInvalidPayload возвращается при некорректно закодированной строке
var ErrInvalidPayload = errors.New("invalid wire payload")

// EncodeString кодирует произвольную байтовую последовательность для передачи
func EncodeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c >= 0x20 && c <= 0x7e:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, `\x%02x`, c)
		}
	}
	return strings.ToUpper(hex.EncodeToString([]byte(b.String())))
}

// DecodeString восстанавливает исходную байтовую последовательность
func DecodeString(s string) (string, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", ErrInvalidPayload
	}

	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(raw) {
			return "", ErrInvalidPayload
		}
		switch raw[i+1] {
		case '\\':
			b.WriteByte('\\')
			i++
		case 'x':
			if i+3 >= len(raw) {
				return "", ErrInvalidPayload
			}
			v, err := hex.DecodeString(string(raw[i+2 : i+4]))
			if err != nil {
				return "", ErrInvalidPayload
			}
			b.WriteByte(v[0])
			i += 3
		default:
			return "", ErrInvalidPayload
		}
	}
	return b.String(), nil
}

// DecodeResults раскодирует карту результатов из транспортной формы.
// Шорткоды, URL и метки кодировки приходят закодированными по отдельности.
func DecodeResults(in map[string]models.ResultPayload) (map[string]models.ResultPayload, error) {
	out := make(map[string]models.ResultPayload, len(in))
	for code, payload := range in {
		shortcode, err := DecodeString(code)
		if err != nil {
			return nil, err
		}
		url, err := DecodeString(payload.URL)
		if err != nil {
			return nil, err
		}
		encoding, err := DecodeString(payload.Encoding)
		if err != nil {
			return nil, err
		}
		out[shortcode] = models.ResultPayload{URL: url, Encoding: encoding}
	}
	return out, nil
}

// EncodeResults кодирует карту результатов в транспортную форму
func EncodeResults(in map[string]models.ResultPayload) map[string]models.ResultPayload {
	out := make(map[string]models.ResultPayload, len(in))
	for code, payload := range in {
		out[EncodeString(code)] = models.ResultPayload{
			URL:      EncodeString(payload.URL),
			Encoding: EncodeString(payload.Encoding),
		}
	}
	return out
}
