// Package fingerprint records the files a build depended on so that a later
// run can tell whether anything changed.
package fingerprint

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/qobs-build/buildkit"
)

// Filename is the state file kept in the intermediate directory.
const Filename = "buildkit_fingerprint.json"

const defaultCacheSize = 4096

// Inputs are the settings a build ran with, besides file contents.
type Inputs struct {
	Configuration buildkit.Configuration `json:"configuration"`
	Flags         []string               `json:"flags,omitempty"`
	// Sources is the resolved source list, so that added or removed sources
	// are noticed.
	Sources []string `json:"sources,omitempty"`
}

// State is the fingerprint of a finished build.
type State struct {
	BuildID string `json:"build_id"`
	Inputs
	Product string `json:"product,omitempty"`
	// Artifacts are the outputs of a compile-only build.
	Artifacts []string `json:"artifacts,omitempty"`
	// Files maps each watched file to its sha256, or "" if it did not exist.
	Files map[string]string `json:"files"`
}

// Watched returns the watched files, sorted.
func (s *State) Watched() []string {
	files := make([]string, 0, len(s.Files))
	for f := range s.Files {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

func (s *State) outputs() []string {
	if s.Product != "" {
		return append([]string{s.Product}, s.Artifacts...)
	}
	return s.Artifacts
}

// Path returns where the state of a build using intermediateDir lives.
func Path(intermediateDir string) string {
	return filepath.Join(intermediateDir, Filename)
}

// Load reads a saved state. It returns nil without error if there is none.
func Load(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // no previous state, that's fine
		}
		return nil, err
	}
	defer f.Close()

	var state State
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&state); err != nil {
		return nil, fmt.Errorf("corrupt fingerprint %s: %w", path, err)
	}
	return &state, nil
}

// Save writes the state to path.
func Save(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

type cachedHash struct {
	modTime time.Time
	size    int64
	hash    string
}

// Hasher hashes files, remembering results until a file's size or
// modification time changes. Safe for concurrent use.
type Hasher struct {
	cache *lru.Cache[string, cachedHash]
}

func NewHasher() *Hasher {
	cache, err := lru.New[string, cachedHash](defaultCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Hasher{cache: cache}
}

// Hash computes the SHA256 hash of a file. A missing file hashes to "".
func (h *Hasher) Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.cache.Remove(path)
			return "", nil
		}
		return "", err
	}
	if c, ok := h.cache.Get(path); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.hash, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	hexHash := hex.EncodeToString(hash.Sum(nil))
	h.cache.Add(path, cachedHash{modTime: info.ModTime(), size: info.Size(), hash: hexHash})
	return hexHash, nil
}

// Record fingerprints a build that just finished. product is "" for a
// compile-only build, whose outputs are artifacts.
func (h *Hasher) Record(in Inputs, product string, artifacts, files []string) (*State, error) {
	state := &State{
		BuildID: uuid.NewString(),
		Inputs: Inputs{
			Configuration: in.Configuration,
			Flags:         slices.Clone(in.Flags),
			Sources:       slices.Clone(in.Sources),
		},
		Product:   product,
		Artifacts: slices.Clone(artifacts),
		Files:     make(map[string]string, len(files)),
	}
	for _, f := range files {
		if _, ok := state.Files[f]; ok {
			continue
		}
		hash, err := h.Hash(f)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", f, err)
		}
		state.Files[f] = hash
	}
	return state, nil
}

// Stale reports whether a build with these inputs must run again, and why.
func (h *Hasher) Stale(prev *State, in Inputs) (bool, string, error) {
	if prev == nil {
		return true, "no previous build", nil
	}
	if prev.Configuration != in.Configuration {
		return true, fmt.Sprintf("configuration changed from %s to %s", prev.Configuration, in.Configuration), nil
	}
	if !slices.Equal(prev.Flags, in.Flags) {
		return true, "flags changed", nil
	}
	if !slices.Equal(prev.Sources, in.Sources) {
		return true, "source list changed", nil
	}
	for _, out := range prev.outputs() {
		if _, err := os.Stat(out); err != nil {
			return true, fmt.Sprintf("%s is missing", out), nil
		}
	}

	for _, f := range prev.Watched() {
		hash, err := h.Hash(f)
		if err != nil {
			return true, "", err
		}
		switch want := prev.Files[f]; {
		case hash == want:
		case hash == "":
			return true, fmt.Sprintf("%s was removed", f), nil
		default:
			return true, fmt.Sprintf("%s changed", f), nil
		}
	}
	return false, "", nil
}
