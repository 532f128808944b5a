// Package trace captures HTTP exchanges with the survey archives on the
// wire. Dumps keep the bytes exactly as exchanged and restore consumed
// bodies, so a fetch can be archived without disturbing the caller reading
// it. Structured payloads, the VOTable XML from VizieR, the MAST JSON
// envelopes and the occasional HTML error page, also get an indented
// rendering for the report.
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/beevik/etree"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yosssi/gohtml"
)

// Dump is one captured side of an exchange.
type Dump struct {
	Raw    []byte // Wire bytes, head plus body
	Pretty string // Indented rendering, empty when the body has no structured form
}

// Request captures an outgoing request. The body is read and restored so the
// transport can still send it.
func Request(req *http.Request) (Dump, error) {
	head, err := httputil.DumpRequestOut(req, false)
	if err != nil {
		return Dump{}, fmt.Errorf("dumping request : %w", err)
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return Dump{}, fmt.Errorf("reading request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	return assemble(head, body), nil
}

// Response captures a received response. The body is read and restored so
// the caller can still consume it.
func Response(res *http.Response) (Dump, error) {
	head, err := httputil.DumpResponse(res, false)
	if err != nil {
		return Dump{}, fmt.Errorf("dumping response : %w", err)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Dump{}, fmt.Errorf("reading response body: %w", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))

	return assemble(head, body), nil
}

// ResponseHead captures only the status line and headers of a response. The
// body is left alone. Binary payloads, cutouts and tarballs, are archived
// this way with the body living in the file cache.
func ResponseHead(res *http.Response) ([]byte, error) {
	head, err := httputil.DumpResponse(res, false)
	if err != nil {
		return nil, fmt.Errorf("dumping response head : %w", err)
	}

	return head, nil
}

// assemble joins head and body into the raw dump and attaches the pretty
// rendering when the body has one.
func assemble(head, body []byte) Dump {
	raw := make([]byte, 0, len(head)+len(body))
	raw = append(raw, head...)
	raw = append(raw, body...)

	dump := Dump{Raw: raw}
	if pretty := Prettify(body); len(pretty) > 0 {
		var buf bytes.Buffer
		buf.Write(head)
		buf.Write(pretty)
		dump.Pretty = buf.String()
	}

	return dump
}

// Prettify renders a structured body with indentation. JSON and XML bodies
// are reindented, HTML is formatted. Anything else, including bodies that
// only a lenient parser would accept, yields nil.
func Prettify(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err == nil {
		indented, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return nil
		}

		return indented
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(trimmed); err == nil && doc.Root() != nil {
		doc.Indent(1)
		var buf bytes.Buffer
		if _, err := doc.WriteTo(&buf); err != nil {
			return nil
		}

		return buf.Bytes()
	}

	// etree rejects bare HTML, sniff it separately.
	kind := mimetype.Detect(trimmed).String()
	looksHTML := bytes.HasPrefix(trimmed, []byte("<")) && !bytes.HasPrefix(trimmed, []byte("<?xml"))
	if strings.Contains(kind, "text/html") || looksHTML {
		formatted := gohtml.FormatBytes(trimmed)
		if len(formatted) > 0 && !bytes.Equal(formatted, trimmed) {
			return formatted
		}
	}

	return nil
}
