package trace

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

var forcedErr = errors.New("forced error")

// erroringReader will return an error on Reads
type erroringReader struct{}

func (er *erroringReader) Read(p []byte) (n int, err error) {
	return 0, forcedErr
}

func (er *erroringReader) Close() error {
	return nil
}

func TestPrettify(t *testing.T) {
	t.Run("Valid JSON", func(t *testing.T) {
		want := []byte("{\n  \"msg\": \"ok\",\n  \"status\": \"COMPLETE\"\n}")
		got := Prettify([]byte(`{"status":"COMPLETE","msg":"ok"}`))
		if !bytes.Equal(want, got) {
			t.Fatalf("wanted:\n%q\ngot:    %q", want, got)
		}
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		if got := Prettify([]byte(`{"status":"COMPLETE",}`)); len(got) != 0 {
			t.Fatalf("expected no rendering got %q", got)
		}
	})

	t.Run("VOTable XML", func(t *testing.T) {
		want := []byte("<?xml version=\"1.0\"?>\n<VOTABLE>\n <RESOURCE>\n  <TABLE/>\n </RESOURCE>\n</VOTABLE>\n")
		got := Prettify([]byte(`<?xml version="1.0"?><VOTABLE><RESOURCE><TABLE/></RESOURCE></VOTABLE>`))
		if !bytes.Equal(want, got) {
			t.Fatalf("wanted:\n%q\ngot:    %q", want, got)
		}
	})

	t.Run("Invalid XML", func(t *testing.T) {
		if got := Prettify([]byte(`<?xml version="1.0"?<VOTABLE></VOTABLE>`)); len(got) != 0 {
			t.Fatalf("expected no rendering got %q", got)
		}
	})

	t.Run("Lenient HTML error page", func(t *testing.T) {
		got := Prettify([]byte(`<html><body><p>archive maintenance</body></html>`))
		if len(got) == 0 {
			t.Fatal("expected the error page to be formatted")
		}
		if !bytes.Contains(got, []byte("\n")) {
			t.Fatalf("formatting added no structure: %q", got)
		}
	})

	t.Run("Plaintext", func(t *testing.T) {
		if got := Prettify([]byte(`hello, azimuth`)); len(got) != 0 {
			t.Fatalf("expected no rendering got %q", got)
		}
	})

	t.Run("Binary body", func(t *testing.T) {
		if got := Prettify([]byte("SIMPLE  =                    T\x00\x01\x02")); len(got) != 0 {
			t.Fatalf("expected no rendering got %q", got)
		}
	})

	t.Run("Empty body", func(t *testing.T) {
		if got := Prettify(nil); len(got) != 0 {
			t.Fatalf("expected no rendering got %q", got)
		}
	})
}

func TestRequest(t *testing.T) {
	t.Run("Dumps and restores the body", func(t *testing.T) {
		body := `{"service":"Mast.Caom.Cone"}`
		req, err := http.NewRequest(http.MethodPost, "http://archive.test/api/v0/invoke", strings.NewReader(body))
		if err != nil {
			t.Fatalf("building request: %v", err)
		}

		dump, err := Request(req)
		if err != nil {
			t.Fatalf("dumping request: %v", err)
		}

		if !bytes.Contains(dump.Raw, []byte("POST /api/v0/invoke HTTP/1.1")) {
			t.Error("request line missing from the dump")
		}
		if !bytes.Contains(dump.Raw, []byte("Host: archive.test")) {
			t.Error("host header missing from the dump")
		}
		if !bytes.HasSuffix(dump.Raw, []byte(body)) {
			t.Error("body missing from the dump")
		}

		if !strings.Contains(dump.Pretty, "\"service\": \"Mast.Caom.Cone\"") {
			t.Errorf("body not prettified: %q", dump.Pretty)
		}

		restored, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("reading restored body: %v", err)
		}
		if string(restored) != body {
			t.Fatalf("wanted:\n%q\ngot:    %q", body, restored)
		}
	})

	t.Run("Bodyless request", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://archive.test/viewer/cutout.fits?ra=185", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}

		dump, err := Request(req)
		if err != nil {
			t.Fatalf("dumping request: %v", err)
		}

		if !bytes.HasSuffix(dump.Raw, []byte("\r\n\r\n")) {
			t.Error("dump does not end at the header terminator")
		}
		if dump.Pretty != "" {
			t.Errorf("expected no rendering got %q", dump.Pretty)
		}
	})
}

// jsonResponse builds a plain response carrying a JSON body.
func jsonResponse(body io.Reader) *http.Response {
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(body),
	}
}

func TestResponse(t *testing.T) {
	t.Run("Dumps and restores the body", func(t *testing.T) {
		body := `{"status":"COMPLETE"}`
		res := jsonResponse(strings.NewReader(body))

		dump, err := Response(res)
		if err != nil {
			t.Fatalf("dumping response: %v", err)
		}

		if !bytes.Contains(dump.Raw, []byte("HTTP/1.1 200 OK")) {
			t.Error("status line missing from the dump")
		}
		if !bytes.HasSuffix(dump.Raw, []byte(body)) {
			t.Error("body missing from the dump")
		}
		if !strings.Contains(dump.Pretty, "\"status\": \"COMPLETE\"") {
			t.Errorf("body not prettified: %q", dump.Pretty)
		}

		restored, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatalf("reading restored body: %v", err)
		}
		if string(restored) != body {
			t.Fatalf("wanted:\n%q\ngot:    %q", body, restored)
		}
	})

	t.Run("Body read failure surfaces", func(t *testing.T) {
		res := jsonResponse(nil)
		res.Body = &erroringReader{}

		if _, err := Response(res); !errors.Is(err, forcedErr) {
			t.Fatalf("wanted the forced error got %v", err)
		}
	})
}

func TestResponseHead(t *testing.T) {
	body := `{"status":"COMPLETE"}`
	res := jsonResponse(strings.NewReader(body))

	head, err := ResponseHead(res)
	if err != nil {
		t.Fatalf("dumping response head: %v", err)
	}

	if !bytes.Contains(head, []byte("HTTP/1.1 200 OK")) {
		t.Error("status line missing from the head")
	}
	if bytes.Contains(head, []byte("COMPLETE")) {
		t.Error("head contains the body")
	}

	rest, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("reading body after head dump: %v", err)
	}
	if string(rest) != body {
		t.Fatalf("wanted:\n%q\ngot:    %q", body, rest)
	}
}
