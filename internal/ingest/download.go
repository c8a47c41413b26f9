package ingest

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/FocuswithJustin/JuniperScripture/core/errors"
)

// NewHTTPClient returns the resty client used for URL imports.
func NewHTTPClient(timeout time.Duration, userAgent string) *resty.Client {
	c := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if userAgent != "" {
		c.SetHeader("User-Agent", userAgent)
	}
	return c
}

// download fetches rawURL with a single GET and returns the body together with
// a filename hint taken from the URL path. report receives percentages derived
// from Content-Length; without one it sees only 0 and 100.
func (p *Pipeline) download(ctx context.Context, rawURL string, report func(int)) ([]byte, string, error) {
	report(0)

	resp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return nil, "", &errors.DownloadError{URL: rawURL, Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, "", &errors.DownloadError{URL: rawURL, StatusCode: code, Status: resp.Status()}
	}

	total := resp.RawResponse.ContentLength
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	pr := &progressReader{r: body, total: total, report: report, last: 0}
	if _, err := io.Copy(&buf, pr); err != nil {
		return nil, "", &errors.DownloadError{URL: rawURL, Err: err}
	}
	report(100)

	return buf.Bytes(), filenameFromURL(rawURL), nil
}

// progressReader reports whole-percent changes while the body streams.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	pr.read += int64(n)
	if pr.total > 0 && n > 0 {
		pct := int(pr.read * 100 / pr.total)
		if pct > 100 {
			pct = 100
		}
		// 100 is reported once the copy completes.
		if pct > pr.last && pct < 100 {
			pr.last = pct
			pr.report(pct)
		}
	}
	return n, err
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
