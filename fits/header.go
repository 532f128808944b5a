package fits

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BlockSize is the FITS block length in bytes. Headers and data sections are
// always padded to a whole number of blocks.
const BlockSize = 2880

// CardSize is the length of a single header record.
const CardSize = 80

// ErrKeywordNotFound is returned by the typed header accessors when the requested keyword is absent.
var ErrKeywordNotFound = errors.New("keyword not found in header")

// Card is a single header record. Value holds the raw value field exactly as it
// appears between the value indicator and the comment, so rewriting a card that
// was never touched reproduces the original bytes.
type Card struct {
	Keyword string // Keyword name, upper case, at most 8 characters
	Value   string // Raw value field, quotes included for strings
	Comment string // Comment following the value, without the slash
}

// Header is an ordered FITS header. Card order is preserved across a
// read-modify-write cycle, lookups go through an index keyed by keyword.
type Header struct {
	cards []Card
	index map[string]int
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{index: make(map[string]int)}
}

// parseCard splits one 80-byte header record into a Card.
// Records without the "= " value indicator (COMMENT, HISTORY, END, blank) are
// stored with an empty value and the remainder of the record as the comment.
func parseCard(rec []byte) Card {
	keyword := strings.TrimRight(string(rec[:8]), " ")

	if string(rec[8:10]) != "= " {
		return Card{Keyword: keyword, Comment: strings.TrimRight(string(rec[8:]), " ")}
	}

	body := string(rec[10:])

	// a slash inside a quoted string is part of the value, walk the quotes
	inString := false
	slash := -1
	for i := 0; i < len(body); i++ {
		switch {
		case body[i] == '\'':
			inString = !inString
		case body[i] == '/' && !inString:
			slash = i
		}
		if slash != -1 {
			break
		}
	}

	card := Card{Keyword: keyword}
	if slash == -1 {
		card.Value = strings.TrimSpace(body)
	} else {
		card.Value = strings.TrimSpace(body[:slash])
		card.Comment = strings.TrimSpace(body[slash+1:])
	}

	return card
}

// formatCard renders the card as a fixed 80-byte record.
func formatCard(card Card) []byte {
	rec := make([]byte, CardSize)
	for i := range rec {
		rec[i] = ' '
	}

	copy(rec, card.Keyword)

	if card.Value == "" {
		copy(rec[8:], card.Comment)
		return rec
	}

	line := "= "
	if strings.HasPrefix(card.Value, "'") {
		// strings are left aligned after the indicator
		line += card.Value
	} else {
		// numeric and logical values are right aligned to column 30
		line += fmt.Sprintf("%20s", card.Value)
	}

	if card.Comment != "" {
		line += " / " + card.Comment
	}

	if len(line) > CardSize-8 {
		line = line[:CardSize-8]
	}
	copy(rec[8:], line)

	return rec
}

// Cards returns the header records in file order.
func (h *Header) Cards() []Card {
	return h.cards
}

// Has reports whether the keyword is present.
func (h *Header) Has(keyword string) bool {
	_, ok := h.index[keyword]
	return ok
}

// append adds a parsed card, keeping the first occurrence in the index.
func (h *Header) append(card Card) {
	h.cards = append(h.cards, card)
	if _, ok := h.index[card.Keyword]; !ok && card.Keyword != "" {
		h.index[card.Keyword] = len(h.cards) - 1
	}
}

// raw returns the raw value field for the keyword.
func (h *Header) raw(keyword string) (string, error) {
	i, ok := h.index[keyword]
	if !ok {
		return "", fmt.Errorf("%w : %s", ErrKeywordNotFound, keyword)
	}

	return h.cards[i].Value, nil
}

// Str returns the keyword value as a string with FITS quoting removed.
func (h *Header) Str(keyword string) (string, error) {
	raw, err := h.raw(keyword)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(raw, "'") {
		raw = strings.TrimPrefix(raw, "'")
		if i := strings.LastIndex(raw, "'"); i != -1 {
			raw = raw[:i]
		}
		raw = strings.ReplaceAll(raw, "''", "'")
	}

	return strings.TrimRight(raw, " "), nil
}

// Int returns the keyword value as an integer.
func (h *Header) Int(keyword string) (int, error) {
	raw, err := h.raw(keyword)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s as int : %w", keyword, err)
	}

	return value, nil
}

// Float returns the keyword value as a float64. Fortran style D exponents are accepted.
func (h *Header) Float(keyword string) (float64, error) {
	raw, err := h.raw(keyword)
	if err != nil {
		return 0, err
	}

	raw = strings.Replace(strings.TrimSpace(raw), "D", "E", 1)
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s as float : %w", keyword, err)
	}

	return value, nil
}

// Bool returns the keyword value as a bool, T for true and F for false.
func (h *Header) Bool(keyword string) (bool, error) {
	raw, err := h.raw(keyword)
	if err != nil {
		return false, err
	}

	switch strings.TrimSpace(raw) {
	case "T":
		return true, nil
	case "F":
		return false, nil
	default:
		return false, fmt.Errorf("parsing %s as bool : invalid logical %q", keyword, raw)
	}
}

// FloatOr returns the keyword value as a float64, falling back to def when the
// keyword is missing or malformed.
func (h *Header) FloatOr(keyword string, def float64) float64 {
	value, err := h.Float(keyword)
	if err != nil {
		return def
	}
	return value
}

// set stores a card, replacing the value in place when the keyword exists so
// the original header layout is preserved.
func (h *Header) set(keyword, value, comment string) {
	if i, ok := h.index[keyword]; ok {
		h.cards[i].Value = value
		if comment != "" {
			h.cards[i].Comment = comment
		}
		return
	}

	h.append(Card{Keyword: keyword, Value: value, Comment: comment})
}

// SetStr sets a string valued keyword.
func (h *Header) SetStr(keyword, value, comment string) {
	quoted := "'" + strings.ReplaceAll(value, "'", "''")
	if len(quoted) < 9 {
		// fixed format strings are padded to at least 8 characters
		quoted += strings.Repeat(" ", 9-len(quoted))
	}
	quoted += "'"

	h.set(keyword, quoted, comment)
}

// SetFloat sets a float valued keyword with the given number of decimals.
func (h *Header) SetFloat(keyword string, value float64, decimals int, comment string) {
	h.set(keyword, strconv.FormatFloat(value, 'f', decimals, 64), comment)
}

// SetInt sets an integer valued keyword.
func (h *Header) SetInt(keyword string, value int, comment string) {
	h.set(keyword, strconv.Itoa(value), comment)
}
