package azimuth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	tls "github.com/refraction-networking/utls"
	utls "github.com/refraction-networking/utls"
)

// recordingRoundTripper archives both sides of every exchange before handing
// the response back. Requests flagged to skip recording pass straight through.
type recordingRoundTripper struct {
	pipeline *Pipeline
	base     http.RoundTripper
}

// newRecordingTransport will create azimuth's roundtripper.
// It will define the base transport with the upstream TLSConfig using utls to mimic Chrome
// and wrap it with the archive recording RoundTripper. The survey image CDNs sit
// behind WAFs that reject the default Go TLS stack, the Chrome fingerprint keeps
// the cutout downloads flowing.
func newRecordingTransport(pipeline *Pipeline) http.RoundTripper {
	transport := &http.Transport{}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		sniHost, _, err := net.SplitHostPort(addr)
		if err != nil {
			sniHost = addr
		}

		uTlsConfig := &utls.Config{
			ServerName: sniHost,
		}

		if transport.TLSClientConfig != nil {
			uTlsConfig.InsecureSkipVerify = transport.TLSClientConfig.InsecureSkipVerify
		}

		uConn := utls.UClient(tcpConn, uTlsConfig, utls.HelloChrome_Auto)

		if err := uConn.BuildHandshakeState(); err != nil {
			return nil, fmt.Errorf("buildling handshake state : %w", err)
		}

		foundALPN := false
		// HelloChrome_Auto will ignore uTLSConfig.NextProtos and accept H2
		// This will loop over all the TLSExtensions and set the ALPNExtension to accept
		// http/1.1 only. This needs to be done before .HandshakeContext
		for _, ext := range uConn.Extensions {
			if alpnExt, ok := ext.(*tls.ALPNExtension); ok {
				alpnExt.AlpnProtocols = []string{"http/1.1"}
				foundALPN = true
				break
			}
		}

		if !foundALPN {
			return nil, errors.New("could not find ALPNExtension")
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			tcpConn.Close()
			return nil, err
		}

		return uConn, nil
	}

	return &recordingRoundTripper{
		pipeline: pipeline,
		base:     transport,
	}
}

// RoundTrip satisfies http.RoundTripper. It assigns the fetch ID, stamps the
// request and response times into the context, and queues both sides of the
// exchange on the archive channel.
func (r *recordingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if skip, ok := SkipFlagFromContext(req.Context()); ok && skip {
		return r.base.RoundTrip(req)
	}

	fetchId, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating new uuid : %w", err)
	}

	if _, ok := MetadataFromContext(req.Context()); !ok {
		req = req.WithContext(WithMetadata(req.Context(), make(Metadata)))
	}
	req = ContextWithFetchID(req, fetchId)
	req = ContextWithRequestTime(req, time.Now())

	fetchRequest, err := NewFetchRequest(req, fetchId)
	if err != nil {
		return nil, fmt.Errorf("recording request %s : %w", fetchId, err)
	}
	r.pipeline.ArchiveChannel <- fetchRequest

	res, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	res.Request = ContextWithResponseTime(res.Request, time.Now())
	fetchResponse, err := NewFetchResponse(res)
	if err != nil {
		r.pipeline.WriteLog("ERROR", fmt.Sprintf("recording response : %s", err.Error()))
		return res, nil
	}
	r.pipeline.ArchiveChannel <- fetchResponse

	return res, nil
}
