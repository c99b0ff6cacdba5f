// ==================================
// File: internal/suiaddr/address.go
// ==================================
package suiaddr

import (
	"errors"
	"fmt"
	"strings"
)

// AddressLength — длина нормализованного адреса Sui в hex-символах (32 байта).
const AddressLength = 64

// ZeroAddress — нулевой адрес (0x0).
const ZeroAddress = Address("0x0000000000000000000000000000000000000000000000000000000000000000")

// ClockObject — общий системный объект часов Sui (0x6), который требуют
// многие Move-вызовы DEX-программ.
const ClockObject = Address("0x0000000000000000000000000000000000000000000000000000000000000006")

// ErrInvalidAddress возникает, когда входная строка не является валидным адресом Sui.
var ErrInvalidAddress = errors.New("invalid sui address")

// Address — нормализованный адрес Sui: "0x" + 64 hex-символа в нижнем регистре.
// Значения этого типа создаются только через Normalize, поэтому любые сравнения
// и ключи map/кеша по Address корректны по построению.
type Address string

// Normalize приводит сырую строку к каноническому виду: нижний регистр,
// префикс 0x, дополнение нулями слева до 64 символов. Возвращает
// ErrInvalidAddress для пустых, не-hex и слишком длинных значений.
func Normalize(raw string) (Address, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidAddress)
	}
	if len(s) > AddressLength {
		return "", fmt.Errorf("%w: %q is longer than %d hex chars", ErrInvalidAddress, raw, AddressLength)
	}
	s = strings.ToLower(s)
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q contains non-hex character %q", ErrInvalidAddress, raw, c)
		}
	}
	return Address("0x" + strings.Repeat("0", AddressLength-len(s)) + s), nil
}

// MustNormalize — вариант Normalize для констант; паникует на невалидном входе.
func MustNormalize(raw string) Address {
	a, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// NormalizeType нормализует полный coin type вида "0x2::sui::SUI",
// включая generic-параметры ("0x..::clmm::Pool<0x2::sui::SUI,0x..::usdc::USDC>").
// Адресная часть каждого сегмента приводится к каноническому виду,
// остальное сохраняется как есть.
func NormalizeType(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty type", ErrInvalidAddress)
	}

	// Разбираем generic-параметры рекурсивно.
	if open := strings.IndexByte(s, '<'); open >= 0 {
		if !strings.HasSuffix(s, ">") {
			return "", fmt.Errorf("%w: unbalanced type params in %q", ErrInvalidAddress, raw)
		}
		head, err := NormalizeType(s[:open])
		if err != nil {
			return "", err
		}
		params := splitTypeParams(s[open+1 : len(s)-1])
		normalized := make([]string, 0, len(params))
		for _, p := range params {
			np, err := NormalizeType(p)
			if err != nil {
				return "", err
			}
			normalized = append(normalized, np)
		}
		return head + "<" + strings.Join(normalized, ",") + ">", nil
	}

	parts := strings.SplitN(s, "::", 2)
	addr, err := Normalize(parts[0])
	if err != nil {
		return "", err
	}
	if len(parts) == 1 {
		return string(addr), nil
	}
	return string(addr) + "::" + parts[1], nil
}

// splitTypeParams разделяет список generic-параметров по запятым верхнего уровня.
func splitTypeParams(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

// IsZero сообщает, является ли адрес нулевым.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Equal сравнивает два нормализованных адреса.
func Equal(a, b Address) bool {
	return a == b
}

// String реализует fmt.Stringer.
func (a Address) String() string {
	return string(a)
}

// Shorten возвращает сокращённую форму адреса: первые и последние n
// hex-символов, соединённые многоточием. При n <= 0 используется 8.
func (a Address) Shorten(n int) string {
	if n <= 0 {
		n = 8
	}
	s := string(a)
	if len(s) <= 2+2*n {
		return s
	}
	return s[:2+n] + "..." + s[len(s)-n:]
}

// PackageID извлекает идентификатор пакета из типа или адреса объекта:
// всё до первого "::", нормализованное.
func PackageID(typeOrAddr string) (Address, error) {
	s := strings.TrimSpace(typeOrAddr)
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	return Normalize(s)
}
