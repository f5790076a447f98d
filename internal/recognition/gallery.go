package recognition

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

const cacheVersion = 1

// scanConcurrency bounds parallel requests to the embedding server.
const scanConcurrency = 4

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Sample is one enrolled face photo.
type Sample struct {
	Person    string
	Path      string
	Embedding []float32
	Hash      uint64 // difference hash of the photo, 0 if it could not be computed
}

// ErrDuplicatePhoto is returned when enrolling a photo that is already in the
// person's gallery.
var ErrDuplicatePhoto = errors.New("photo is already enrolled")

type cacheDocument struct {
	Version int
	Samples []Sample
}

// Gallery is the set of enrolled faces: photos laid out as
// <dir>/<person>/<photo>, with their embeddings cached in a gob file.
type Gallery struct {
	mu        sync.RWMutex
	dir       string
	cachePath string
	detector  FaceDetector
	samples   []Sample
	logger    *slog.Logger
}

// GalleryOption configures a Gallery.
type GalleryOption func(g *Gallery)

// WithGalleryLogger sets the logger for scan progress and skipped photos.
func WithGalleryLogger(logger *slog.Logger) GalleryOption {
	return func(g *Gallery) {
		g.logger = logger
	}
}

// NewGallery creates an empty gallery. Call Load or Scan to fill it.
func NewGallery(dir, cachePath string, detector FaceDetector, opts ...GalleryOption) *Gallery {
	g := &Gallery{
		dir:       dir,
		cachePath: cachePath,
		detector:  detector,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dir returns the photo directory.
func (g *Gallery) Dir() string {
	return g.dir
}

// Load fills the gallery from the cache file, scanning the photo directory
// when the cache is missing or unreadable.
func (g *Gallery) Load(ctx context.Context, progress func(done, total int)) error {
	err := g.LoadCache()
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		g.logger.Warn("face encodings cache unusable, rebuilding", "path", g.cachePath, "error", err)
	}
	if err := g.Scan(ctx, progress); err != nil {
		return err
	}
	return g.SaveCache()
}

// LoadCache reads samples from the cache file.
func (g *Gallery) LoadCache() error {
	data, err := os.ReadFile(g.cachePath)
	if err != nil {
		return err
	}
	var doc cacheDocument
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return fmt.Errorf("decode %s: %w", g.cachePath, err)
	}
	if doc.Version != cacheVersion {
		return fmt.Errorf("cache %s has version %d, want %d", g.cachePath, doc.Version, cacheVersion)
	}

	g.mu.Lock()
	g.samples = doc.Samples
	g.mu.Unlock()
	g.logger.Info("face encodings loaded", "path", g.cachePath, "samples", len(doc.Samples))
	return nil
}

// SaveCache writes the current samples to the cache file.
func (g *Gallery) SaveCache() error {
	g.mu.RLock()
	doc := cacheDocument{Version: cacheVersion, Samples: g.samples}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(doc)
	g.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode face encodings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(g.cachePath), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := renameio.WriteFile(g.cachePath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", g.cachePath, err)
	}
	return nil
}

// photoFile is a gallery photo found on disk.
type photoFile struct {
	person string
	path   string
}

// listPhotos walks <dir>/<person>/ for image files, sorted by path.
func (g *Gallery) listPhotos() ([]photoFile, error) {
	people, err := os.ReadDir(g.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gallery %s: %w", g.dir, err)
	}

	var photos []photoFile
	for _, p := range people {
		if !p.IsDir() {
			continue
		}
		personDir := filepath.Join(g.dir, p.Name())
		files, err := os.ReadDir(personDir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", personDir, err)
		}
		for _, f := range files {
			if f.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			photos = append(photos, photoFile{
				person: attendance.NormalizeName(p.Name()),
				path:   filepath.Join(personDir, f.Name()),
			})
		}
	}
	sort.Slice(photos, func(i, j int) bool { return photos[i].path < photos[j].path })
	return photos, nil
}

// PhotoPeople lists the people that have at least one photo in the gallery
// directory, without computing any embedding.
func (g *Gallery) PhotoPeople() ([]string, error) {
	photos, err := g.listPhotos()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(photos))
	for _, p := range photos {
		names = append(names, p.person)
	}
	return attendance.UniqueNames(names), nil
}

// PhotoCounts returns how many photos each person has in the gallery
// directory, without computing any embedding.
func (g *Gallery) PhotoCounts() (map[string]int, error) {
	photos, err := g.listPhotos()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, p := range photos {
		counts[p.person]++
	}
	return counts, nil
}

// Scan rebuilds the samples from the photo directory. Photos without a
// detectable face are skipped with a warning. progress, if set, is called
// after each photo.
func (g *Gallery) Scan(ctx context.Context, progress func(done, total int)) error {
	photos, err := g.listPhotos()
	if err != nil {
		return err
	}

	results := make([]Sample, len(photos))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	sem := make(chan struct{}, scanConcurrency)

	for i, photo := range photos {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, photo photoFile) {
			defer wg.Done()
			defer func() { <-sem }()

			sample, err := g.sampleFromFile(ctx, photo)
			if err != nil {
				g.logger.Warn("skipping gallery photo", "path", photo.path, "error", err)
			} else {
				results[i] = sample
			}

			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(photos))
			}
			mu.Unlock()
		}(i, photo)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	samples := make([]Sample, 0, len(results))
	for _, s := range results {
		if len(s.Embedding) > 0 {
			samples = append(samples, s)
		}
	}

	g.mu.Lock()
	g.samples = samples
	g.mu.Unlock()
	g.logger.Info("face gallery scanned", "dir", g.dir, "photos", len(photos), "samples", len(samples))
	return nil
}

func (g *Gallery) sampleFromFile(ctx context.Context, photo photoFile) (Sample, error) {
	data, err := os.ReadFile(photo.path)
	if err != nil {
		return Sample{}, err
	}
	emb, err := g.embed(ctx, data)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Person: photo.person, Path: photo.path, Embedding: emb, Hash: g.hash(data)}, nil
}

func (g *Gallery) hash(data []byte) uint64 {
	h, err := DifferenceHash(data)
	if err != nil {
		g.logger.Debug("photo hash unavailable", "error", err)
		return 0
	}
	return h
}

// duplicateOf returns the enrolled photo of person that looks like hash.
func (g *Gallery) duplicateOf(person string, hash uint64) (string, bool) {
	if hash == 0 {
		return "", false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.samples {
		if s.Person == person && s.Hash != 0 && HammingDistance(s.Hash, hash) <= duplicateHashDistance {
			return s.Path, true
		}
	}
	return "", false
}

// embed returns the embedding of the first detected face.
func (g *Gallery) embed(ctx context.Context, data []byte) ([]float32, error) {
	if g.detector == nil {
		return nil, errors.New("no face detector configured")
	}
	resp, err := g.detector.DetectFaces(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(resp.Faces) == 0 || len(resp.Faces[0].Embedding) == 0 {
		return nil, errors.New("no face detected")
	}
	return resp.Faces[0].Embedding, nil
}

// Enroll stores a photo of person in the gallery directory and adds its
// face to the samples. A photo that matches one already enrolled for the
// person is rejected with ErrDuplicatePhoto. The cache is not rewritten;
// call SaveCache.
func (g *Gallery) Enroll(ctx context.Context, person string, imageData []byte) (Sample, error) {
	person = attendance.NormalizeName(person)
	if person == "" {
		return Sample{}, attendance.ErrEmptyPerson
	}
	hash := g.hash(imageData)
	if existing, ok := g.duplicateOf(person, hash); ok {
		return Sample{}, fmt.Errorf("%w: %s", ErrDuplicatePhoto, filepath.Base(existing))
	}
	emb, err := g.embed(ctx, imageData)
	if err != nil {
		return Sample{}, fmt.Errorf("enroll %s: %w", person, err)
	}

	personDir := filepath.Join(g.dir, person)
	if err := os.MkdirAll(personDir, 0o755); err != nil {
		return Sample{}, fmt.Errorf("create %s: %w", personDir, err)
	}
	name := fmt.Sprintf("%s_%d%s", strings.ReplaceAll(person, " ", "_"), time.Now().UnixNano(), extensionFor(imageData))
	path := filepath.Join(personDir, name)
	if err := os.WriteFile(path, imageData, 0o644); err != nil {
		return Sample{}, fmt.Errorf("write %s: %w", path, err)
	}

	sample := Sample{Person: person, Path: path, Embedding: emb, Hash: hash}
	g.mu.Lock()
	g.samples = append(g.samples, sample)
	g.mu.Unlock()
	return sample, nil
}

func extensionFor(data []byte) string {
	if detectMIMEType(data) == "image/png" {
		return ".png"
	}
	return ".jpg"
}

// Remove deletes every sample and photo of person.
func (g *Gallery) Remove(person string) (int, error) {
	person = attendance.NormalizeName(person)

	g.mu.Lock()
	kept := g.samples[:0:0]
	removed := 0
	for _, s := range g.samples {
		if s.Person == person {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	g.samples = kept
	g.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(g.dir, person)); err != nil {
		return removed, fmt.Errorf("remove photos of %s: %w", person, err)
	}
	return removed, nil
}

// Samples returns a copy of the enrolled samples.
func (g *Gallery) Samples() []Sample {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Sample, len(g.samples))
	copy(out, g.samples)
	return out
}

// People returns the enrolled names, de-duplicated and sorted.
func (g *Gallery) People() []string {
	g.mu.RLock()
	names := make([]string, 0, len(g.samples))
	for _, s := range g.samples {
		names = append(names, s.Person)
	}
	g.mu.RUnlock()
	return attendance.UniqueNames(names)
}

// SampleCounts returns how many samples each enrolled person has.
func (g *Gallery) SampleCounts() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	counts := make(map[string]int)
	for _, s := range g.samples {
		counts[s.Person]++
	}
	return counts
}
