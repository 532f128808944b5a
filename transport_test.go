package azimuth

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/tfkr-ae/azimuth/domain"
)

type stubRoundTripper struct {
	wasCalled bool
	request   *http.Request
	response  *http.Response
	err       error
}

func (s *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	s.wasCalled = true
	s.request = req
	if s.err != nil {
		return nil, s.err
	}
	if s.response == nil {
		s.response = &http.Response{
			Status:     "204 No Content",
			StatusCode: http.StatusNoContent,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}
	}
	s.response.Request = req
	return s.response, nil
}

func testPipeline() *Pipeline {
	return &Pipeline{ArchiveChannel: make(chan ArchiveItem, 10)}
}

func TestRecordingRoundTripper(t *testing.T) {
	t.Run("records both sides of an exchange", func(t *testing.T) {
		stub := &stubRoundTripper{
			response: &http.Response{
				Status:     "200 OK",
				StatusCode: http.StatusOK,
				Proto:      "HTTP/1.1",
				ProtoMajor: 1,
				ProtoMinor: 1,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body:       io.NopCloser(bytes.NewBufferString(`{"stars":12}`)),
			},
		}
		pipeline := testPipeline()
		transport := &recordingRoundTripper{pipeline: pipeline, base: stub}

		req, err := http.NewRequest("GET", "https://vizier.cds.unistra.fr/viz-bin/votable?catalog=ps1", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		req = req.WithContext(WithSurvey(req.Context(), domain.SurveyVizieR))

		res, err := transport.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		if !stub.wasCalled {
			t.Fatal("base transport was not called")
		}

		item := <-pipeline.ArchiveChannel
		fetchReq, ok := item.(*domain.FetchRequest)
		if !ok {
			t.Fatalf("first archive item = %T, want *domain.FetchRequest", item)
		}
		if fetchReq.Survey != domain.SurveyVizieR {
			t.Errorf("recorded survey = %q, want %q", fetchReq.Survey, domain.SurveyVizieR)
		}
		if fetchReq.Host != "vizier.cds.unistra.fr" {
			t.Errorf("recorded host = %q", fetchReq.Host)
		}
		if fetchReq.Path != "/viz-bin/votable?catalog=ps1" {
			t.Errorf("recorded path = %q", fetchReq.Path)
		}

		item = <-pipeline.ArchiveChannel
		fetchRes, ok := item.(*domain.FetchResponse)
		if !ok {
			t.Fatalf("second archive item = %T, want *domain.FetchResponse", item)
		}
		if fetchRes.ID != fetchReq.ID {
			t.Errorf("response fetch id = %s, request had %s", fetchRes.ID, fetchReq.ID)
		}
		if fetchRes.StatusCode != http.StatusOK {
			t.Errorf("recorded status = %d", fetchRes.StatusCode)
		}
		if fetchRes.ContentType != "application/json" {
			t.Errorf("recorded content type = %q", fetchRes.ContentType)
		}
		if _, ok := fetchRes.Metadata["prettified-response"]; !ok {
			t.Error("json body was not prettified into the metadata")
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatalf("reading response body: %v", err)
		}
		if string(body) != `{"stars":12}` {
			t.Errorf("caller sees body %q after recording", body)
		}
	})

	t.Run("skip flag bypasses recording", func(t *testing.T) {
		stub := &stubRoundTripper{}
		pipeline := testPipeline()
		transport := &recordingRoundTripper{pipeline: pipeline, base: stub}

		req, err := http.NewRequest("GET", "https://example.org/health", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		req = ContextWithSkipFlag(req, true)

		if _, err := transport.RoundTrip(req); err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		if !stub.wasCalled {
			t.Fatal("base transport was not called")
		}

		select {
		case item := <-pipeline.ArchiveChannel:
			t.Fatalf("archive channel received %T for a skipped request", item)
		default:
		}
	})

	t.Run("base errors pass through after the request row", func(t *testing.T) {
		wantErr := errors.New("connection reset by peer")
		stub := &stubRoundTripper{err: wantErr}
		pipeline := testPipeline()
		transport := &recordingRoundTripper{pipeline: pipeline, base: stub}

		req, err := http.NewRequest("GET", "https://unwise.me/cutout", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}

		if _, err := transport.RoundTrip(req); !errors.Is(err, wantErr) {
			t.Fatalf("RoundTrip() error = %v, want %v", err, wantErr)
		}

		item := <-pipeline.ArchiveChannel
		if _, ok := item.(*domain.FetchRequest); !ok {
			t.Fatalf("archive item = %T, want the request row", item)
		}
		select {
		case item := <-pipeline.ArchiveChannel:
			t.Fatalf("archive channel received %T after a failed exchange", item)
		default:
		}
	})

	t.Run("missing survey is recorded as unknown", func(t *testing.T) {
		stub := &stubRoundTripper{}
		pipeline := testPipeline()
		transport := &recordingRoundTripper{pipeline: pipeline, base: stub}

		req, err := http.NewRequest("GET", "https://example.org/", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}

		if _, err := transport.RoundTrip(req); err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}

		fetchReq := (<-pipeline.ArchiveChannel).(*domain.FetchRequest)
		if fetchReq.Survey != "unknown" {
			t.Errorf("recorded survey = %q, want unknown", fetchReq.Survey)
		}
	})
}

func TestBinaryContent(t *testing.T) {
	cases := []struct {
		contentType string
		want        bool
	}{
		{"application/fits", true},
		{"application/octet-stream", true},
		{"application/x-tar", true},
		{"image/jpeg", true},
		{"image/png", true},
		{"text/xml", false},
		{"application/json", false},
		{"text/html", false},
	}

	for _, tc := range cases {
		if got := binaryContent(tc.contentType); got != tc.want {
			t.Errorf("binaryContent(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}
