package policyopa

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	cryptoinfra "chlumarket/internal/infra/crypto"
)

type policyManifest struct {
	Files []policyFile `json:"files"`
}

type policyFile struct {
	Path    string `json:"path"`
	Address string `json:"address"`
}

// PolicyAddress content addresses the rego and data files under fsys so a
// running policy can be identified in logs.
func PolicyAddress(fsys fs.FS) (string, error) {
	files, err := collectPolicyFiles(fsys)
	if err != nil {
		return "", err
	}
	entries := make([]policyFile, 0, len(files))
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", err
		}
		c, err := cryptoinfra.AddressBytes(data)
		if err != nil {
			return "", err
		}
		entries = append(entries, policyFile{Path: name, Address: c.String()})
	}
	address, _, err := cryptoinfra.AddressOf(policyManifest{Files: entries})
	return address, err
}

func collectPolicyFiles(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == "." {
			return nil
		}
		base := path.Base(p)
		if strings.HasPrefix(base, ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if base == "data.json" || strings.HasSuffix(base, ".rego") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
