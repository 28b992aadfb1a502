package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/listwatch/models"
)

// maxBody caps buffered page bodies. Larger bodies are a transport fault.
const maxBody = 10 << 20

// HTTPEngine fetches pages and images over plain net/http with a
// Chrome-like TLS fingerprint. Requests carry the configured User-Agent
// and no other headers.
type HTTPEngine struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPOptions configures an HTTPEngine.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Proxy     string
}

// NewHTTPEngine creates an HTTPEngine. Timeout applies to the whole
// exchange for buffered requests; streamed bodies are bounded by the
// caller's context instead.
func NewHTTPEngine(opts HTTPOptions) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ResponseHeaderTimeout: opts.Timeout,
		ForceAttemptHTTP2:     false,
	}
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if !req.Stream && e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "build request for "+req.URL, err)
	}
	httpReq.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "request "+req.URL, err)
	}

	// 3xx responses the client did not follow (304) count as success.
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, models.NewStatusError(req.URL, resp.StatusCode)
	}

	result := &FetchResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		EngineName:  e.Name(),
	}

	if req.Stream {
		result.Stream = resp.Body
		return result, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "read body of "+req.URL, err)
	}
	if len(body) > maxBody {
		return nil, models.NewCrawlError(models.ErrCodeTransport,
			fmt.Sprintf("body of %s exceeds %d bytes", req.URL, maxBody), nil)
	}
	result.Body = body
	return result, nil
}
