package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attackguard/attackctl/internal/platform/errs"
	"github.com/attackguard/attackctl/internal/platform/resilience"
	"github.com/attackguard/attackctl/internal/report"
	"github.com/attackguard/attackctl/internal/textproc"
	"github.com/attackguard/attackctl/internal/workflow"
)

// fetchRetries/fetchRetryDelay bound the plain (non-classifying) retry
// around the document fetch's HTTP round trip: a handful of quick attempts
// to ride out a dropped connection, distinct from the workflow engine's
// classify-aware task-level retry loop that wraps the whole handler.
const (
	fetchRetries    = 3
	fetchRetryDelay = 250 * time.Millisecond
)

type fetchResult struct {
	body []byte
	mime string
}

// PrepareDeps is the set of injected collaborators prepare-document needs.
type PrepareDeps struct {
	UploadDir     string
	MaxUploadSize int64
	Client        *http.Client
	Extractors    *textproc.Registry
	ChunkOptions  textproc.ChunkOptions
}

// NewPrepareDocument builds the prepare-document handler: it resolves either
// a remote URL (pooled fetch, grounded on HTTPTaskExecutor) or an uploaded
// file path confined to deps.UploadDir, detects its format, extracts text,
// and assembles a DocumentBundle.
func NewPrepareDocument(deps PrepareDeps) workflow.Handler {
	tracer := otel.Tracer("attackctl-analysis")
	client := deps.Client
	if client == nil {
		client = newPooledClient(30 * time.Second)
	}

	return func(ctx context.Context, ec *workflow.ExecContext, input any) (any, error) {
		ctx, span := tracer.Start(ctx, "prepare-document")
		defer span.End()

		sub, ok := input.(SubmissionInput)
		if !ok {
			return nil, errs.New(errs.KindInvalidWorkflowDefinition, "prepare-document requires a SubmissionInput")
		}
		span.SetAttributes(attribute.String("url", sub.URL), attribute.String("documentName", sub.DocumentName))

		var raw []byte
		var err error
		var mimeType string
		var source report.Source

		switch {
		case sub.URL != "":
			raw, mimeType, err = fetchURL(ctx, client, sub.URL, deps.MaxUploadSize)
			if err != nil {
				return nil, err
			}
			source = report.Source{URL: sub.URL}
		case sub.DocumentPath != "":
			raw, err = readUpload(deps.UploadDir, sub.DocumentPath, deps.MaxUploadSize)
			if err != nil {
				return nil, err
			}
			source = report.Source{Filename: sub.DocumentName}
		default:
			return nil, errs.New(errs.KindInvalidURL, "prepare-document requires either a url or a documentPath")
		}

		filename := sub.DocumentName
		if filename == "" && sub.URL != "" {
			if u, err := url.Parse(sub.URL); err == nil {
				filename = filepath.Base(u.Path)
			}
		}

		format, ok := textproc.DetectFormat(filename, mimeType)
		if !ok {
			return nil, errs.Wrap(errs.KindUnsupportedFormat, fmt.Errorf("could not detect format for %q (mime %q)", filename, mimeType))
		}

		text, err := deps.Extractors.Extract(format, raw)
		if err != nil {
			return nil, errs.Wrap(errs.KindUnsupportedFormat, err)
		}

		opts := deps.ChunkOptions
		if opts.MaxChunkSize == 0 {
			opts = textproc.DefaultChunkOptions()
		}
		bundle := textproc.NewBundle(text, textproc.Metadata{
			Format:    format,
			SourceURL: sub.URL,
			Filename:  filename,
		}, opts)

		opt := sub.Options
		if opt.MinConfidence == 0 && opt.MaxResults == 0 {
			opt = DefaultOptions()
		}

		return prepareOutput{Bundle: bundle, Source: source, Options: opt}, nil
	}
}

func fetchURL(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", errs.Wrap(errs.KindInvalidURL, fmt.Errorf("invalid document url %q", rawURL))
	}

	res, err := resilience.Retry(ctx, fetchRetries, fetchRetryDelay, func() (fetchResult, error) {
		return fetchOnce(ctx, client, rawURL, maxBytes)
	})
	if err != nil {
		return nil, "", err
	}
	return res.body, res.mime, nil
}

func fetchOnce(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{}, errs.Wrap(errs.KindInvalidURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fetchResult{}, errs.Wrap(errs.KindFetchTimeout, err)
		}
		return fetchResult{}, errs.Wrap(errs.KindConnectionReset, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fetchResult{}, errs.Wrap(errs.KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return fetchResult{}, errs.Wrap(errs.KindUpstreamServerError, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return fetchResult{}, errs.Wrap(errs.KindInvalidURL, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return fetchResult{}, errs.Wrap(errs.KindConnectionReset, err)
	}
	if int64(len(body)) > maxBytes {
		return fetchResult{}, errs.New(errs.KindOversizedDocument, "fetched document exceeds the configured size limit")
	}
	return fetchResult{body: body, mime: resp.Header.Get("Content-Type")}, nil
}

// readUpload reads an already-saved upload by its bare file name, rejecting
// any path with directory components or one that would escape uploadDir
// (the upload endpoint is the only writer of this directory and stores flat
// names, so any other path indicates a malformed or hostile input).
func readUpload(uploadDir, documentPath string, maxBytes int64) ([]byte, error) {
	if filepath.Base(documentPath) != documentPath {
		return nil, errs.New(errs.KindInvalidURL, "document path escapes the upload directory")
	}
	full := filepath.Join(uploadDir, documentPath)
	if !strings.HasPrefix(full, filepath.Clean(uploadDir)+string(filepath.Separator)) {
		return nil, errs.New(errs.KindInvalidURL, "document path escapes the upload directory")
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidURL, err)
	}
	if info.Size() > maxBytes {
		return nil, errs.New(errs.KindOversizedDocument, "uploaded document exceeds the configured size limit")
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidURL, err)
	}
	return data, nil
}
