// Package anatomy provides the anatomical template: a read-through disk cache
// in front of one or more download sources, and decoding into a voxel volume.
package anatomy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/KyungWonPark/nifti"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"brainmap/internal/models"
)

// maxTemplateBytes caps a single download after decompression.
const maxTemplateBytes = 512 << 20

// stdoutMu serializes redirections of os.Stdout.
var stdoutMu sync.Mutex

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DecodeFunc reads the voxel data of a validated template file.
type DecodeFunc func(path string, hdr *Header) (*models.Volume, error)

// Params holds the template store configuration.
type Params struct {
	// Dir is the cache directory
	Dir string

	// Filename is the cache key inside Dir
	Filename string

	// Sources are tried in order on a cache miss
	Sources []string

	// Timeout bounds each download attempt
	Timeout time.Duration

	// DefaultAffine is used when the template header has no sform
	DefaultAffine models.Affine
}

// Store is a read-through cache for the anatomical template.
type Store struct {
	params *Params
	client HTTPClient
	decode DecodeFunc
	logger *zap.Logger
}

// NewStore creates a template store. A nil client uses http.DefaultClient.
func NewStore(params *Params, client HTTPClient, logger *zap.Logger) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		params: params,
		client: client,
		decode: decodeNifti,
		logger: logger,
	}
}

// WithDecoder replaces the voxel decoder.
func (s *Store) WithDecoder(decode DecodeFunc) *Store {
	s.decode = decode
	return s
}

// Path returns the location of the cached template.
func (s *Store) Path() string {
	return filepath.Join(s.params.Dir, s.params.Filename)
}

// Ensure makes sure a valid template is cached and returns its path. A valid
// cached file short-circuits without any network access; a corrupt one is
// removed and fetched again.
func (s *Store) Ensure(ctx context.Context) (string, error) {
	path := s.Path()

	_, err := s.validate(path)
	switch {
	case err == nil:
		s.logger.Debug("Using cached template", zap.String("path", path))
		return path, nil
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("Template not cached", zap.String("path", path))
	default:
		s.logger.Warn("Discarding corrupt cached template", zap.String("path", path), zap.Error(err))
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return "", fmt.Errorf("failed to remove corrupt template: %w", rmErr)
		}
	}

	if err := os.MkdirAll(s.params.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create template directory: %w", err)
	}

	if len(s.params.Sources) == 0 {
		return "", errors.New("no template sources configured")
	}

	var errs []error
	for _, src := range s.params.Sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		s.logger.Info("Fetching template", zap.String("source", src))
		if err := s.fetch(ctx, src, path); err != nil {
			s.logger.Warn("Template source failed", zap.String("source", src), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
			continue
		}
		return path, nil
	}

	return "", fmt.Errorf("failed to fetch template: %w", errors.Join(errs...))
}

// Load returns the template as a volume on its own voxel grid. Intensities
// are raw scanner values.
func (s *Store) Load(ctx context.Context) (*models.Volume, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		path, err := s.Ensure(ctx)
		if err != nil {
			return nil, err
		}

		hdr, err := s.validate(path)
		if err != nil {
			return nil, err
		}

		var vol *models.Volume
		if capErr := s.captureStdout(func() { vol, err = s.decode(path, hdr) }); capErr != nil {
			return nil, capErr
		}
		if err == nil {
			if hdr.HasSform {
				vol.Affine = hdr.Affine
			} else {
				vol.Affine = s.params.DefaultAffine
			}
			s.logger.Debug("Loaded template",
				zap.Int("width", vol.Width),
				zap.Int("height", vol.Height),
				zap.Int("depth", vol.Depth),
				zap.Bool("sform", hdr.HasSform))
			return vol, nil
		}
		if !errors.Is(err, ErrCorrupt) {
			return nil, err
		}

		// Unreadable voxel data counts as a cache miss
		lastErr = err
		s.logger.Warn("Cached template failed to decode", zap.String("path", path), zap.Error(err))
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove corrupt template: %w", rmErr)
		}
	}
	return nil, lastErr
}

// captureStdout runs fn with os.Stdout redirected into the logger, so that
// nothing a decoder prints can reach the result stream.
func (s *Store) captureStdout(fn func()) error {
	stdoutMu.Lock()
	defer stdoutMu.Unlock()

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to redirect stdout: %w", err)
	}
	saved := os.Stdout
	os.Stdout = w

	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			s.logger.Warn("Template decoder output", zap.String("line", sc.Text()))
		}
		_, _ = io.Copy(io.Discard, r)
	}()

	defer func() {
		os.Stdout = saved
		w.Close()
		<-done
		r.Close()
	}()

	fn()
	return nil
}

// validate checks that path holds a complete NIfTI-1 file.
func (s *Store) validate(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < hdr.DataEnd() {
		return nil, fmt.Errorf("%w: file has %d bytes, header needs %d", ErrCorrupt, info.Size(), hdr.DataEnd())
	}
	return hdr, nil
}

// fetch downloads one source into a temp file next to path, validates it and
// renames it into place.
func (s *Store) fetch(ctx context.Context, url, path string) error {
	if s.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.params.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := maybeGunzip(resp.Body)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(s.params.Dir, s.params.Filename+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, io.LimitReader(body, maxTemplateBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to download template: %w", err)
	}
	if n > maxTemplateBytes {
		return fmt.Errorf("template larger than %d bytes", maxTemplateBytes)
	}

	if _, err := s.validate(tmpPath); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to store template: %w", err)
	}
	s.logger.Info("Template cached", zap.String("path", path), zap.Int64("bytes", n))
	return nil
}

// maybeGunzip wraps r in a gzip reader when it starts with the gzip magic.
func maybeGunzip(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, nil
	}
	return io.NopCloser(br), nil
}

// decodeNifti reads the first 3D volume of a NIfTI-1 file. The header has
// already restricted the datatype to those the library reads.
func decodeNifti(path string, hdr *Header) (vol *models.Volume, err error) {
	defer func() {
		if r := recover(); r != nil {
			vol = nil
			err = fmt.Errorf("%w: decode %s: %v", ErrCorrupt, path, r)
		}
	}()

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	signed := hdr.DataType == DTInt16
	vol = models.NewVolume(hdr.Width, hdr.Height, hdr.Depth, models.Affine{})
	for z := 0; z < hdr.Depth; z++ {
		for y := 0; y < hdr.Height; y++ {
			for x := 0; x < hdr.Width; x++ {
				v := img.GetAt(uint32(x), uint32(y), uint32(z), 0)
				if signed {
					// 16-bit voxels come back unsigned
					vol.Data[vol.Index(x, y, z)] = float64(int16(uint16(v)))
					continue
				}
				vol.Data[vol.Index(x, y, z)] = float64(v)
			}
		}
	}
	return vol, nil
}
