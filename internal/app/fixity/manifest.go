package fixity

import (
	"bufio"
	"context"
	"crypto/md5"  //nolint:gosec // BagIt manifests may use md5
	"crypto/sha1" //nolint:gosec // BagIt manifests may use sha1
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

var (
	manifestNamePattern = regexp.MustCompile(`^(tag)?manifest-(.+)\.txt$`)
	manifestLinePattern = regexp.MustCompile(`^\s*(\w+)\s+\*?\s*(\S+)\s*$`)
)

// hashers lists the supported manifest algorithms.
var hashers = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// SupportedAlgorithms returns the manifest algorithms that can be verified.
func SupportedAlgorithms() []string {
	out := make([]string, 0, len(hashers))
	for alg := range hashers {
		out = append(out, alg)
	}
	sort.Strings(out)
	return out
}

// Entry is one verified manifest line.
type Entry struct {
	Path      string `json:"path"`
	Algorithm string `json:"algorithm"`
	Checksum  string `json:"checksum"`
}

// Report is the outcome of verifying every manifest of a package.
// Paths are package-relative and slash separated.
type Report struct {
	Entries []Entry
	// Unsupported maps an algorithm without a hasher to the files it lists.
	Unsupported map[string][]string
	Missing     []string
	Invalid     []string
}

// Clean reports whether the package has no fixity anomaly.
func (r *Report) Clean() bool {
	return len(r.Unsupported) == 0 && len(r.Missing) == 0 && len(r.Invalid) == 0
}

type manifestLine struct {
	rel      string
	abs      string
	checksum string
}

// verifyPackage checks every manifest in the package root. Files are hashed
// concurrently, at most workers at a time.
func verifyPackage(ctx context.Context, root string, workers int, warn func(msg string, args ...any)) (*Report, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read package root: %w", err)
	}

	report := &Report{Unsupported: map[string][]string{}}
	missing := map[string]bool{}
	invalid := map[string]bool{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := manifestNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		algorithm := m[2]
		lines, err := readManifest(filepath.Join(root, e.Name()), root, warn)
		if err != nil {
			return nil, err
		}

		newHash, ok := hashers[algorithm]
		if !ok {
			for _, l := range lines {
				report.Unsupported[algorithm] = append(report.Unsupported[algorithm], l.rel)
			}
			continue
		}

		var present []manifestLine
		for _, l := range lines {
			if l.abs == "" || !isRegularFile(l.abs) {
				missing[l.rel] = true
				continue
			}
			present = append(present, l)
		}

		valid := make([]bool, len(present))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, l := range present {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sum, err := checksumFile(l.abs, newHash())
				if err != nil {
					return err
				}
				valid[i] = strings.EqualFold(sum, l.checksum)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, l := range present {
			if !valid[i] {
				invalid[l.rel] = true
			}
			report.Entries = append(report.Entries, Entry{Path: l.rel, Algorithm: algorithm, Checksum: l.checksum})
		}
	}

	report.Missing = sortedKeys(missing)
	report.Invalid = sortedKeys(invalid)
	return report, nil
}

// readManifest parses a manifest. A listed path that resolves outside root
// keeps an empty abs and is reported as missing.
func readManifest(file, root string, warn func(msg string, args ...any)) ([]manifestLine, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var lines []manifestLine
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		text := strings.TrimPrefix(sc.Text(), "\ufeff")
		if strings.TrimSpace(text) == "" {
			continue
		}
		m := manifestLinePattern.FindStringSubmatch(text)
		if m == nil {
			warn("unable to parse manifest line", "manifest", filepath.Base(file), "line", text)
			continue
		}
		rel := path.Clean(filepath.ToSlash(m[2]))
		l := manifestLine{rel: rel, checksum: m[1]}
		if filepath.IsLocal(filepath.FromSlash(rel)) {
			l.abs = filepath.Join(root, filepath.FromSlash(rel))
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return lines, nil
}

func checksumFile(name string, h hash.Hash) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isRegularFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
