package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"wphunter/internal/domain"
	"wphunter/internal/ports"
)

// ErrTooLarge is returned when a download exceeds the configured byte
// ceiling instead of attempting unbounded buffering.
var ErrTooLarge = errors.New("archive exceeds size ceiling")

// ErrCorrupt is returned for archives that cannot be safely extracted,
// including entries attempting path traversal.
var ErrCorrupt = errors.New("archive unreadable")

// maxEntryBytes bounds how much of a single source file is scanned.
const maxEntryBytes = 2 << 20

// DefaultDangerousFunctions is the fixed name list of shell/eval/file-write
// primitives counted during deep analysis.
func DefaultDangerousFunctions() []string {
	return []string{
		"eval",
		"exec",
		"system",
		"shell_exec",
		"passthru",
		"popen",
		"proc_open",
		"base64_decode",
		"file_get_contents",
		"file_put_contents",
		"fwrite",
		"unserialize",
		"create_function",
		"call_user_func",
		"move_uploaded_file",
	}
}

// DefaultAjaxPatterns is the fixed list of AJAX-handler registration markers.
func DefaultAjaxPatterns() []string {
	return []string{
		"wp_ajax_",
		"wp_ajax_nopriv_",
		"admin-ajax.php",
		"check_ajax_referer",
	}
}

// Analyzer downloads a candidate's distribution archive, extracts it into a
// scoped temporary workspace, and counts dangerous-function and AJAX-handler
// occurrences in the source. The workspace never outlives the call.
type Analyzer struct {
	client    *http.Client
	maxBytes  int64
	dangerous []*regexp.Regexp
	ajax      []string
	logger    *slog.Logger
}

var _ ports.ArchiveAnalyzer = (*Analyzer)(nil)

// NewAnalyzer wires an HTTP client and the fixed pattern tables. A nil
// client gets a conservative default timeout.
func NewAnalyzer(client *http.Client, maxBytes int64, logger *slog.Logger) *Analyzer {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}

	names := DefaultDangerousFunctions()
	compiled := make([]*regexp.Regexp, 0, len(names))
	for _, name := range names {
		compiled = append(compiled, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(name)+`\s*\(`))
	}

	return &Analyzer{
		client:    client,
		maxBytes:  maxBytes,
		dangerous: compiled,
		ajax:      DefaultAjaxPatterns(),
		logger:    logger,
	}
}

// Analyze runs the full download-extract-scan cycle for one candidate. Any
// failure past the download request is downgraded to an unreadable result so
// a single bad archive never aborts the surrounding scan; the cause is still
// returned for logging.
func (a *Analyzer) Analyze(ctx context.Context, downloadURL string) (domain.DeepAnalysisResult, error) {
	workspace, err := os.MkdirTemp("", "wphunter-deep-*")
	if err != nil {
		return domain.DeepAnalysisResult{ArchiveUnreadable: true}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	zipPath := filepath.Join(workspace, "bundle.zip")
	if err := a.download(ctx, downloadURL, zipPath); err != nil {
		return domain.DeepAnalysisResult{ArchiveUnreadable: true}, err
	}

	extractDir := filepath.Join(workspace, "src")
	if err := extract(zipPath, extractDir); err != nil {
		return domain.DeepAnalysisResult{ArchiveUnreadable: true}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	result, err := a.scan(extractDir)
	if err != nil {
		return domain.DeepAnalysisResult{ArchiveUnreadable: true}, err
	}
	return result, nil
}

func (a *Analyzer) download(ctx context.Context, downloadURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "wphunter/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download archive: status %s", resp.Status)
	}
	if resp.ContentLength > a.maxBytes {
		return fmt.Errorf("%w: %d bytes advertised", ErrTooLarge, resp.ContentLength)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if written > a.maxBytes {
		return fmt.Errorf("%w: over %d bytes", ErrTooLarge, a.maxBytes)
	}
	return nil
}

// extract unpacks source files, rejecting entries that would escape dest.
func extract(zipPath, dest string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	for _, entry := range reader.File {
		name := filepath.FromSlash(entry.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("entry %q escapes workspace", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			continue
		}
		if !scannable(name) {
			continue
		}

		target := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, io.LimitReader(rc, maxEntryBytes))
	return err
}

func scannable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".php", ".inc", ".phtml":
		return true
	default:
		return false
	}
}

func (a *Analyzer) scan(root string) (domain.DeepAnalysisResult, error) {
	var result domain.DeepAnalysisResult

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !scannable(path) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			// A single unreadable file is not worth discarding the archive.
			return nil
		}

		for _, expr := range a.dangerous {
			result.DangerousFunctions += len(expr.FindAllIndex(content, -1))
		}
		text := string(content)
		for i, pattern := range a.ajax {
			hits := strings.Count(text, pattern)
			// wp_ajax_nopriv_ embeds wp_ajax_; each registration counts once.
			for j, other := range a.ajax {
				if i != j && strings.Contains(other, pattern) {
					hits -= strings.Count(text, other)
				}
			}
			result.AjaxHandlers += hits
		}
		return nil
	})
	if err != nil {
		return domain.DeepAnalysisResult{ArchiveUnreadable: true}, err
	}
	return result, nil
}
