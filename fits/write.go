package fits

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// WriteFile writes the file to path, replacing any existing file.
func (f *File) WriteFile(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s : %w", path, err)
	}

	w := bufio.NewWriter(out)
	if err := f.WriteTo(w); err != nil {
		out.Close()
		return fmt.Errorf("writing %s : %w", path, err)
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("flushing %s : %w", path, err)
	}

	return out.Close()
}

// WriteTo encodes every HDU to the writer. Unmodified data sections are
// emitted from their original bytes, images replaced through SetImage are
// re-encoded from their pixels.
func (f *File) WriteTo(w io.Writer) error {
	for i, hdu := range f.HDUs {
		if err := writeHeader(w, hdu.Header); err != nil {
			return fmt.Errorf("writing header %d : %w", i, err)
		}

		if err := hdu.writeData(w); err != nil {
			return fmt.Errorf("writing data %d : %w", i, err)
		}
	}

	return nil
}

// SetImage replaces the HDU's pixel data. The header's BITPIX, BZERO and
// BSCALE cards are rewritten to plain float32 and the retained raw section is
// dropped so the next write encodes the new pixels.
func (hdu *HDU) SetImage(img *Image) {
	hdu.Image = img
	hdu.raw = nil

	hdu.Header.SetInt("BITPIX", -32, "number of bits per data pixel")
	hdu.Header.SetInt("NAXIS", len(img.Naxisn), "number of data axes")
	for i, n := range img.Naxisn {
		hdu.Header.SetInt(fmt.Sprintf("NAXIS%d", i+1), n, "")
	}
	hdu.Header.SetFloat("BZERO", 0, 1, "")
	hdu.Header.SetFloat("BSCALE", 1, 1, "")
}

// writeHeader emits the header cards followed by END, padded to a full block.
func writeHeader(w io.Writer, h *Header) error {
	written := 0
	for _, card := range h.Cards() {
		if _, err := w.Write(formatCard(card)); err != nil {
			return err
		}
		written += CardSize
	}

	if _, err := w.Write(formatCard(Card{Keyword: "END"})); err != nil {
		return err
	}
	written += CardSize

	return pad(w, written, ' ')
}

// writeData emits the data section padded to a full block.
func (hdu *HDU) writeData(w io.Writer) error {
	if hdu.raw != nil {
		_, err := w.Write(hdu.raw)
		return err
	}

	if hdu.Image == nil {
		return nil
	}

	buf := make([]byte, 4)
	for _, v := range hdu.Image.Data {
		binary.BigEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}

	return pad(w, len(hdu.Image.Data)*4, 0)
}

// pad fills the writer up to the next block boundary with the given byte.
func pad(w io.Writer, written int, fill byte) error {
	rem := written % BlockSize
	if rem == 0 {
		return nil
	}

	block := make([]byte, BlockSize-rem)
	for i := range block {
		block[i] = fill
	}

	_, err := w.Write(block)
	return err
}
