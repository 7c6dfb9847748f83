package feed

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/fetcher"
	"github.com/sells-group/gdelt-ingest/internal/schema"
	"github.com/sells-group/gdelt-ingest/internal/workspace"
)

// Download is the outcome of fetching one snapshot.
type Download struct {
	// Name is the extracted raw file name.
	Name string
	Kind schema.Kind
	// Skipped is set when the snapshot was already present locally.
	Skipped bool
	Bytes   int64
	Elapsed time.Duration
}

// Downloader fetches snapshot archives into a workspace's raw directories
// and unpacks them.
type Downloader struct {
	fetcher fetcher.Fetcher
	ws      *workspace.Workspace
}

// NewDownloader creates a Downloader writing into ws.
func NewDownloader(f fetcher.Fetcher, ws *workspace.Workspace) *Downloader {
	return &Downloader{fetcher: f, ws: ws}
}

// Fetch downloads the archive at url into the mode's raw directory and
// returns the extracted file name. A 404 surfaces as ErrNotFound.
func (d *Downloader) Fetch(ctx context.Context, url string, mode workspace.Mode) (string, error) {
	res, err := d.Download(ctx, url, mode)
	if err != nil {
		return "", err
	}
	return res.Name, nil
}

// Download is Fetch with the full outcome. Snapshots already downloaded or
// cleaned for the mode are not fetched again.
func (d *Downloader) Download(ctx context.Context, url string, mode workspace.Mode) (Download, error) {
	start := time.Now()
	archive := path.Base(url)
	k, err := schema.KindFromFileName(archive)
	if err != nil {
		return Download{}, eris.Wrapf(err, "feed: download %s", url)
	}
	res := Download{Name: strings.TrimSuffix(archive, ".zip"), Kind: k}

	log := zap.L().With(
		zap.String("component", "feed"),
		zap.String("table", k.String()),
		zap.String("file", res.Name),
		zap.Stringer("mode", mode),
	)

	if d.ws.IsDownloaded(k, mode, archive) {
		res.Skipped = true
		log.Debug("already downloaded")
		return res, nil
	}

	rawState := workspace.RawState(mode)
	zipPath := d.ws.Path(k, rawState, archive)
	n, err := d.fetcher.DownloadToFile(ctx, url, zipPath)
	if err != nil {
		return res, eris.Wrapf(err, "feed: download %s", archive)
	}
	res.Bytes = n

	extracted, err := fetcher.ExtractZIPSingle(zipPath, d.ws.Dir(k, rawState))
	if rmErr := os.Remove(zipPath); rmErr != nil {
		log.Warn("remove archive failed", zap.Error(rmErr))
	}
	if err != nil {
		return res, eris.Wrapf(err, "feed: extract %s", archive)
	}

	res.Name = filepath.Base(extracted)
	d.ws.Add(k, rawState, res.Name)
	res.Elapsed = time.Since(start)
	log.Info("downloaded", zap.Int64("bytes", n), zap.Duration("elapsed", res.Elapsed))
	return res, nil
}
