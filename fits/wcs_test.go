package fits

import (
	"errors"
	"math"
	"testing"
)

// testHeader builds a header carrying a typical tangent plane solution,
// 0.43 arcsec pixels with north up.
func testHeader() *Header {
	h := NewHeader()
	h.SetFloat("CRVAL1", 170.06987, 6, "")
	h.SetFloat("CRVAL2", 12.99185, 6, "")
	h.SetFloat("CRPIX1", 2048, 1, "")
	h.SetFloat("CRPIX2", 2048, 1, "")
	h.SetStr("CTYPE1", "RA---TAN", "")
	h.SetStr("CTYPE2", "DEC--TAN", "")
	h.set("CD1_1", "-1.194444E-04", "")
	h.set("CD1_2", "0.0", "")
	h.set("CD2_1", "0.0", "")
	h.set("CD2_2", "1.194444E-04", "")
	return h
}

func TestWCS(t *testing.T) {
	t.Run("Reference pixel maps to reference value", func(t *testing.T) {
		w, err := NewWCS(testHeader())
		if err != nil {
			t.Fatalf("building WCS: %v", err)
		}

		ra, dec := w.PixToWorld(2048, 2048)
		if math.Abs(ra-170.06987) > 1e-9 || math.Abs(dec-12.99185) > 1e-9 {
			t.Errorf("wanted reference position 170.06987 12.99185 got %v %v", ra, dec)
		}
	})

	t.Run("Roundtrip through the projection", func(t *testing.T) {
		w, err := NewWCS(testHeader())
		if err != nil {
			t.Fatalf("building WCS: %v", err)
		}

		for _, pix := range [][2]float64{{1, 1}, {100, 3950}, {4000, 17}, {2047.5, 2048.5}} {
			ra, dec := w.PixToWorld(pix[0], pix[1])
			x, y, err := w.WorldToPix(ra, dec)
			if err != nil {
				t.Fatalf("inverting %v: %v", pix, err)
			}
			if math.Abs(x-pix[0]) > 1e-6 || math.Abs(y-pix[1]) > 1e-6 {
				t.Errorf("roundtrip of %v gave %v %v", pix, x, y)
			}
		}
	})

	t.Run("Pixel scale", func(t *testing.T) {
		w, err := NewWCS(testHeader())
		if err != nil {
			t.Fatalf("building WCS: %v", err)
		}

		// 1.194444e-4 deg is 0.43 arcsec
		if math.Abs(w.PixScale()*3600-0.43) > 1e-4 {
			t.Errorf("wanted 0.43 arcsec pixels got %v", w.PixScale()*3600)
		}
	})

	t.Run("RA wraps around zero", func(t *testing.T) {
		h := testHeader()
		h.SetFloat("CRVAL1", 0.01, 6, "")
		w, err := NewWCS(h)
		if err != nil {
			t.Fatalf("building WCS: %v", err)
		}

		ra, _ := w.PixToWorld(4000, 2048)
		if ra < 0 || ra >= 360 {
			t.Errorf("expected RA in [0, 360) got %v", ra)
		}
	})

	t.Run("Missing keywords", func(t *testing.T) {
		if _, err := NewWCS(NewHeader()); !errors.Is(err, ErrNoWCS) {
			t.Fatalf("expected ErrNoWCS got %v", err)
		}
	})

	t.Run("CDELT fallback", func(t *testing.T) {
		h := NewHeader()
		h.SetFloat("CRVAL1", 150, 6, "")
		h.SetFloat("CRVAL2", 2.2, 6, "")
		h.set("CDELT1", "-2.75E-4", "")
		h.set("CDELT2", "2.75E-4", "")

		w, err := NewWCS(h)
		if err != nil {
			t.Fatalf("building WCS from CDELT: %v", err)
		}
		if math.Abs(w.PixScale()*3600-0.99) > 1e-6 {
			t.Errorf("wanted 0.99 arcsec pixels got %v", w.PixScale()*3600)
		}
	})
}

func TestHeaderFormat(t *testing.T) {
	t.Run("Card roundtrip", func(t *testing.T) {
		cards := []Card{
			{Keyword: "PHOTZP", Value: "23.456", Comment: "measured zeropoint"},
			{Keyword: "PHOTSYS", Value: "'AB      '"},
			{Keyword: "COMMENT", Comment: "reduced with azimuth"},
		}

		for _, want := range cards {
			rec := formatCard(want)
			if len(rec) != CardSize {
				t.Fatalf("wanted an 80 byte record got %d", len(rec))
			}

			got := parseCard(rec)
			if got.Keyword != want.Keyword {
				t.Errorf("wanted keyword %q got %q", want.Keyword, got.Keyword)
			}
			if got.Value != want.Value {
				t.Errorf("wanted value %q got %q", want.Value, got.Value)
			}
			if got.Comment != want.Comment {
				t.Errorf("wanted comment %q got %q", want.Comment, got.Comment)
			}
		}
	})

	t.Run("Slash inside a string value", func(t *testing.T) {
		rec := formatCard(Card{Keyword: "ORIGIN", Value: "'KPNO/WIYN'", Comment: "observatory"})
		got := parseCard(rec)
		if got.Value != "'KPNO/WIYN'" {
			t.Errorf("wanted the slash kept in the value, got %q", got.Value)
		}
		if got.Comment != "observatory" {
			t.Errorf("wanted comment %q got %q", "observatory", got.Comment)
		}
	})

	t.Run("Set replaces in place", func(t *testing.T) {
		h := NewHeader()
		h.SetFloat("EXPTIME", 300, 1, "")
		h.SetFloat("PHOTZP", 22, 3, "")
		h.SetFloat("EXPTIME", 600, 1, "")

		if len(h.Cards()) != 2 {
			t.Fatalf("wanted 2 cards got %d", len(h.Cards()))
		}

		v, err := h.Float("EXPTIME")
		if err != nil {
			t.Fatalf("reading EXPTIME: %v", err)
		}
		if v != 600 {
			t.Errorf("wanted 600 got %v", v)
		}

		if h.Cards()[0].Keyword != "EXPTIME" {
			t.Errorf("expected EXPTIME to keep its position, got %q first", h.Cards()[0].Keyword)
		}
	})
}
