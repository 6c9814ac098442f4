package pkgpath

import (
	"fmt"
	"strconv"
	"strings"
)

// keyOrder is the fixed field order a metadata record is written in,
// matching original_source/src/nix_interface/nar_info.rs's KEYS
// constant exactly.
var keyOrder = []string{
	"StorePath", "URL", "Compression", "FileHash", "FileSize",
	"NarHash", "NarSize", "References", "Deriver", "Sig",
}

// NarInfo is the metadata record describing one cached package: its
// store path, archive location, content hashes/sizes, and dependency
// references.
type NarInfo struct {
	StorePath   Path
	Key         string // content id of the stored archive; derived from URL on parse
	URL         string
	Compression string
	FileHash    string
	FileSize    uint64
	NarHash     string
	NarSize     uint64
	References  []Path
	Deriver     Path // zero value means none
	Signature   string
}

// New builds a NarInfo the way the closure ingestion engine does:
// file hash/size and compression left empty/zero until a consumer
// chooses to populate them lazily.
func New(storePath Path, key string, narSize uint64, deriver Path, references []Path) NarInfo {
	return NarInfo{
		StorePath:  storePath,
		Key:        key,
		NarSize:    narSize,
		Deriver:    deriver,
		References: references,
	}
}

// GetDependencies returns References with the store path's own entry
// excluded, matching NarInfo::get_dependencies.
func (n NarInfo) GetDependencies() []Path {
	deps := make([]Path, 0, len(n.References))
	for _, r := range n.References {
		if !r.Equal(n.StorePath) {
			deps = append(deps, r)
		}
	}
	return deps
}

// String renders the record in fixed key order, "Key: value\n" per line.
func (n NarInfo) String() string {
	url := n.URL
	if url == "" {
		url = fmt.Sprintf("nar/%s.nar", n.Key)
	}

	values := map[string]string{
		"StorePath":   n.StorePath.String(),
		"URL":         url,
		"Compression": n.Compression,
		"FileHash":    n.FileHash,
		"FileSize":    strconv.FormatUint(n.FileSize, 10),
		"NarHash":     n.NarHash,
		"NarSize":     strconv.FormatUint(n.NarSize, 10),
		"References":  joinPaths(n.References),
		"Deriver":     derivNameOrEmpty(n.Deriver),
		"Sig":         n.Signature,
	}

	var b strings.Builder
	for _, key := range keyOrder {
		fmt.Fprintf(&b, "%s: %s\n", key, values[key])
	}
	return b.String()
}

func joinPaths(paths []Path) string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = pathBaseName(p)
	}
	return strings.Join(names, " ")
}

func derivNameOrEmpty(p Path) string {
	if p.full == "" {
		return ""
	}
	return pathBaseName(p)
}

func pathBaseName(p Path) string {
	return p.Hash + "-" + p.Name
}

// Parse parses a metadata record in the "Key: value\n" format, grounded
// on NarInfo::parse: splits each non-empty line on the first ": ",
// derives the content key from the URL's "nar/<key>.<ext>" segment.
func Parse(content string) (NarInfo, error) {
	fields := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 && strings.HasSuffix(line, ":") {
			// "Key: " with an empty value loses its trailing space to
			// TrimSpace above.
			parts = []string{strings.TrimSuffix(line, ":"), ""}
		}
		if len(parts) != 2 {
			return NarInfo{}, fmt.Errorf("pkgpath: malformed narinfo line %q", line)
		}
		fields[parts[0]] = parts[1]
	}

	// Every fixed key's line must be present, matching NarInfo::parse's
	// per-key .ok_or_else: an absent value is tolerated for several keys
	// (Compression, FileHash, NarHash, References, Deriver, Sig), but an
	// absent line never is.
	for _, key := range keyOrder {
		if _, ok := fields[key]; !ok {
			return NarInfo{}, fmt.Errorf("pkgpath: narinfo missing required key %q", key)
		}
	}

	storePathStr, ok := fields["StorePath"]
	if !ok {
		return NarInfo{}, fmt.Errorf("pkgpath: narinfo missing StorePath")
	}
	storePath, err := Parse(storePathStr)
	if err != nil {
		return NarInfo{}, fmt.Errorf("pkgpath: narinfo StorePath: %w", err)
	}

	url, ok := fields["URL"]
	if !ok {
		return NarInfo{}, fmt.Errorf("pkgpath: narinfo missing URL")
	}
	key, err := keyFromURL(url)
	if err != nil {
		return NarInfo{}, err
	}

	fileSize, err := parseUintField(fields, "FileSize")
	if err != nil {
		return NarInfo{}, err
	}
	narSize, err := parseUintField(fields, "NarSize")
	if err != nil {
		return NarInfo{}, err
	}

	var references []Path
	if refs := fields["References"]; refs != "" {
		for _, ref := range strings.Split(refs, " ") {
			refPath, err := parseReferenceName(ref, storePath)
			if err != nil {
				return NarInfo{}, err
			}
			references = append(references, refPath)
		}
	}

	var deriver Path
	if d := fields["Deriver"]; d != "" {
		deriver, err = parseReferenceName(d, storePath)
		if err != nil {
			return NarInfo{}, err
		}
	}

	compression := fields["Compression"]
	if compression == "none" {
		compression = ""
	}

	return NarInfo{
		StorePath:   storePath,
		Key:         key,
		URL:         url,
		Compression: compression,
		FileHash:    fields["FileHash"],
		FileSize:    fileSize,
		NarHash:     fields["NarHash"],
		NarSize:     narSize,
		References:  references,
		Deriver:     deriver,
		Signature:   fields["Sig"],
	}, nil
}

// parseReferenceName reconstructs an absolute Path from a bare
// "{hash}-{name}" reference using storeRoot's directory for context.
func parseReferenceName(baseName string, storeRoot Path) (Path, error) {
	dir := storeRoot.full[:len(storeRoot.full)-len(storeRoot.Hash+"-"+storeRoot.Name)]
	return Parse(dir + baseName)
}

func keyFromURL(url string) (string, error) {
	idx := strings.LastIndex(url, "nar/")
	if idx < 0 {
		return "", fmt.Errorf("pkgpath: URL %q has no nar/ segment", url)
	}
	tail := url[idx+len("nar/"):]
	dot := strings.Index(tail, ".")
	if dot < 0 {
		return tail, nil
	}
	return tail[:dot], nil
}

func parseUintField(fields map[string]string, key string) (uint64, error) {
	v, ok := fields[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pkgpath: narinfo field %s: %w", key, err)
	}
	return n, nil
}
