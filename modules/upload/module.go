// Package upload provides UploadReport, which PUTs the files of the
// previous stage to pre-signed object storage URLs.
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

const (
	ID = "UploadReport"
	// FilePlaceholder in the url property is replaced by each file's base name.
	FilePlaceholder = "{file}"
	defaultAttempts = 5
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the stage.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Entry{
		ID:     ID,
		Branch: stage.BranchReport,
		New:    func() stage.Stage { return &Uploader{Client: http.DefaultClient, RetryDelay: time.Second} },
	})
}

// Uploader sends every input file with one PUT request.
type Uploader struct {
	stage.Base
	Client     *http.Client
	RetryDelay time.Duration
}

func (u *Uploader) CheckDependencies(_ context.Context, sc *stage.Context) error {
	url := sc.Prop("url", "")
	if url == "" {
		return errors.New("UploadReport requires property \"url\"")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("upload url must be http or https, got %q", url)
	}
	return nil
}

func (u *Uploader) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	logger := ctxlog.FromContext(ctx)
	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}
	pattern := sc.Prop("files", "*")
	attempts := sc.IntProp("attempts", defaultAttempts)

	sent := 0
	for _, in := range inputs {
		if ok, _ := filepath.Match(pattern, filepath.Base(in)); !ok {
			continue
		}
		url := strings.ReplaceAll(sc.Prop("url", ""), FilePlaceholder, filepath.Base(in))
		b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(u.RetryDelay)), uint64(max(attempts-1, 0)))
		err := backoff.RetryNotify(func() error { return u.put(ctx, in, url) }, backoff.WithContext(b, ctx),
			func(err error, next time.Duration) {
				logger.Warn("Upload failed, retrying.", "file", filepath.Base(in), "error", err, "next", next)
			})
		if err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("no input file matches %q", pattern)
	}
	logger.Info("Upload complete.", "files", sent)
	return nil
}

// put uploads one file. Client errors are not retried.
func (u *Uploader) put(ctx context.Context, path, url string) error {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(path)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to open source file '%s': %w", path, err))
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to get file stats for '%s': %w", path, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create upload request: %w", err))
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file.", "source", path, "size", stat.Size(), "contentType", contentType)
	resp, err := u.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		logger.Debug("File uploaded.", "status", resp.Status)
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("upload failed with status: %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("upload rejected with status: %s", resp.Status))
	}
}
