package fits

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNotFITS is returned when the stream does not start with a SIMPLE card.
var ErrNotFITS = errors.New("not a FITS file")

// ErrTruncated is returned when a header or data section ends before its padding.
var ErrTruncated = errors.New("truncated FITS file")

// ErrNoImage is returned when image data is requested from an HDU that has none.
var ErrNoImage = errors.New("HDU has no image data")

// ErrNoTable is returned when table data is requested from an HDU that has none.
var ErrNoTable = errors.New("HDU has no table data")

// HDU is one header-data unit. Image and Table are populated according to the
// unit type, raw holds the encoded data section for verbatim rewrites.
type HDU struct {
	Header *Header
	Image  *Image
	Table  *Table

	raw []byte
}

// File is a parsed FITS file, one HDU per header-data unit in file order.
type File struct {
	Path string
	HDUs []*HDU
}

// Open reads and parses the FITS file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s : %w", path, err)
	}
	defer f.Close()

	file, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s : %w", path, err)
	}

	file.Path = path
	return file, nil
}

// OpenHeader reads only the primary header of the FITS file at path, leaving
// the data sections untouched. Useful for peeking at keywords of large images.
func OpenHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s : %w", path, err)
	}
	defer f.Close()

	header, err := readHeader(f)
	if err == io.EOF {
		return nil, ErrNotFITS
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s : %w", path, err)
	}

	if !header.Has("SIMPLE") {
		return nil, ErrNotFITS
	}

	return header, nil
}

// Read parses a FITS stream into a File.
func Read(r io.Reader) (*File, error) {
	file := &File{}

	for {
		header, err := readHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(file.HDUs) == 0 && !header.Has("SIMPLE") {
			return nil, ErrNotFITS
		}

		hdu := &HDU{Header: header}
		if err := hdu.readData(r); err != nil {
			return nil, err
		}

		file.HDUs = append(file.HDUs, hdu)
	}

	if len(file.HDUs) == 0 {
		return nil, ErrNotFITS
	}

	return file, nil
}

// Primary returns the first HDU.
func (f *File) Primary() *HDU {
	return f.HDUs[0]
}

// NewImageFile wraps the pixels in a fresh single HDU file ready for writing.
func NewImageFile(img *Image) *File {
	header := NewHeader()
	header.set("SIMPLE", "T", "conforms to FITS standard")

	hdu := &HDU{Header: header}
	hdu.SetImage(img)

	return &File{HDUs: []*HDU{hdu}}
}

// readHeader consumes whole blocks until the END card is seen.
func readHeader(r io.Reader) (*Header, error) {
	header := NewHeader()
	block := make([]byte, BlockSize)
	started := false

	for {
		if _, err := io.ReadFull(r, block); err != nil {
			if !started && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading header block : %w", ErrTruncated)
		}
		started = true

		for i := 0; i < BlockSize/CardSize; i++ {
			card := parseCard(block[i*CardSize : (i+1)*CardSize])
			if card.Keyword == "END" {
				return header, nil
			}
			header.append(card)
		}
	}
}

// dataSize returns the byte length of the data section described by the header,
// before block padding. Tables carry their heap in PCOUNT.
func dataSize(h *Header) (int, error) {
	naxis, err := h.Int("NAXIS")
	if err != nil || naxis == 0 {
		return 0, nil
	}

	bitpix, err := h.Int("BITPIX")
	if err != nil {
		return 0, fmt.Errorf("reading BITPIX : %w", err)
	}

	size := 1
	for i := 1; i <= naxis; i++ {
		n, err := h.Int(fmt.Sprintf("NAXIS%d", i))
		if err != nil {
			return 0, fmt.Errorf("reading NAXIS%d : %w", i, err)
		}
		size *= n
	}

	pcount := 0
	if h.Has("PCOUNT") {
		pcount, _ = h.Int("PCOUNT")
	}

	abs := bitpix
	if abs < 0 {
		abs = -abs
	}

	return (size + pcount) * abs / 8, nil
}

// readData consumes the data section following the header, retaining the raw
// bytes and decoding images and binary tables.
func (hdu *HDU) readData(r io.Reader) error {
	size, err := dataSize(hdu.Header)
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	padded := ((size + BlockSize - 1) / BlockSize) * BlockSize
	raw := make([]byte, padded)
	if _, err := io.ReadFull(r, raw[:size]); err != nil {
		return fmt.Errorf("reading data section : %w", ErrTruncated)
	}
	// Some writers drop the padding of the last block, the missing bytes
	// stay zero.
	if _, err := io.ReadFull(r, raw[size:]); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("reading block padding : %w", err)
	}
	hdu.raw = raw

	xtension, _ := hdu.Header.Str("XTENSION")
	xtension = strings.TrimSpace(xtension)

	switch {
	case hdu.Header.Has("SIMPLE"), xtension == "IMAGE":
		image, err := decodeImage(hdu.Header, raw[:size])
		if err != nil {
			return fmt.Errorf("decoding image : %w", err)
		}
		hdu.Image = image
	case xtension == "BINTABLE":
		table, err := decodeTable(hdu.Header, raw[:size])
		if err != nil {
			return fmt.Errorf("decoding table : %w", err)
		}
		hdu.Table = table
	}

	return nil
}
