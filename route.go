package arrbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Signature is the routing metadata of one registered driver, in the
// shape the pure detection function consumes.
type Signature struct {
	Tag         FormatTag
	Magic       []byte
	Schemes     []string
	CreateFlags Flags
	ReadOnly    bool
}

// Op distinguishes the two routing entry points.
type Op int

const (
	OpCreate Op = iota
	OpOpen
)

// Detect picks the format tag for a create/open request. It is a pure
// function of its inputs: no registry access, no I/O, so the routing
// decision is testable in isolation.
//
// Precedence, most binding first:
//
//  1. An explicit cfg.Format always wins, for create and open alike.
//     If the demanded format disagrees with the file's actual content,
//     the driver's own open reports the parse failure.
//  2. Create: the first driver (registration order) whose create-flag
//     bits are all present in cfg.Flags; FormatClassic by default.
//  3. Open: a URL scheme match routes without touching file content.
//  4. Open: the longest magic prefix matching the header; ties broken by
//     registration order.
//  5. Open: cfg.FallbackFormat if set, else ErrUnknownFormat. There is
//     no silent classic default.
func Detect(op Op, cfg *Config, path string, header []byte, sigs []Signature) (FormatTag, error) {
	if cfg != nil && cfg.Format != FormatUnknown {
		return cfg.Format, nil
	}
	var flags Flags
	var fallback FormatTag
	if cfg != nil {
		flags = cfg.Flags
		fallback = cfg.FallbackFormat
	}

	if op == OpCreate {
		for _, sig := range sigs {
			if sig.CreateFlags != 0 && flags.Has(sig.CreateFlags) {
				return sig.Tag, nil
			}
		}
		return FormatClassic, nil
	}

	if scheme := pathScheme(path); scheme != "" {
		for _, sig := range sigs {
			for _, s := range sig.Schemes {
				if s == scheme {
					return sig.Tag, nil
				}
			}
		}
	}

	// Longest signature first; stable sort keeps registration order on ties.
	bySpecificity := append([]Signature(nil), sigs...)
	sort.SliceStable(bySpecificity, func(i, j int) bool {
		return len(bySpecificity[i].Magic) > len(bySpecificity[j].Magic)
	})
	for _, sig := range bySpecificity {
		if len(sig.Magic) > 0 && bytes.HasPrefix(header, sig.Magic) {
			return sig.Tag, nil
		}
	}

	if fallback != FormatUnknown {
		return fallback, nil
	}
	return FormatUnknown, fmt.Errorf("arrbox: %s: %w", path, ErrUnknownFormat)
}

// pathScheme classifies a path syntactically. "proto://..." yields
// "proto"; the rclone remote form "remote:path" yields the pseudo-scheme
// "remote". Plain paths, including Windows drive letters, yield "".
func pathScheme(path string) string {
	if i := strings.Index(path, "://"); i > 0 {
		return strings.ToLower(path[:i])
	}
	i := strings.IndexByte(path, ':')
	if i > 1 && !strings.ContainsAny(path[:i], "/\\") {
		return "remote"
	}
	return ""
}

// maxMagicLen returns the longest registered magic, the number of header
// bytes sniffing needs.
func maxMagicLen(sigs []Signature) int {
	max := 0
	for _, sig := range sigs {
		if len(sig.Magic) > max {
			max = len(sig.Magic)
		}
	}
	return max
}

// Create makes a new dataset, choosing the backend from cfg.Format or
// the create-flag bits, and returns a Session bound to it.
func Create(ctx context.Context, path string, cfg *Config) (*Session, error) {
	cfg = cfg.withDefaults()
	sigs, err := readySignatures()
	if err != nil {
		return nil, err
	}
	tag, err := Detect(OpCreate, cfg, path, nil, sigs)
	if err != nil {
		return nil, err
	}
	return dispatch(ctx, OpCreate, tag, path, cfg, sigs)
}

// Open opens an existing dataset, classifying the path syntactically
// first and sniffing the file header only when that is inconclusive.
func Open(ctx context.Context, path string, cfg *Config) (*Session, error) {
	cfg = cfg.withDefaults()
	sigs, err := readySignatures()
	if err != nil {
		return nil, err
	}

	var header []byte
	if cfg.Format == FormatUnknown && pathScheme(path) == "" {
		header, err = readHeader(cfg, path, maxMagicLen(sigs))
		if err != nil {
			return nil, err
		}
	}
	tag, err := Detect(OpOpen, cfg, path, header, sigs)
	if err != nil {
		return nil, err
	}
	return dispatch(ctx, OpOpen, tag, path, cfg, sigs)
}

func readySignatures() ([]Signature, error) {
	registry.mu.RLock()
	ok := registry.initialized
	registry.mu.RUnlock()
	if !ok {
		return nil, ErrNotReady
	}
	return signatures(), nil
}

func readHeader(cfg *Config, path string, n int) ([]byte, error) {
	f, err := cfg.Fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, n)
	read, err := f.Read(header)
	if read == 0 && err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("arrbox: reading header of %s: %w", path, err)
	}
	// An empty file is an unmatchable header, not an I/O failure; Detect
	// turns it into ErrUnknownFormat.
	return header[:read], nil
}

// dispatch binds the chosen driver to a fresh Session and runs the
// backend's entry point. The entry point's status propagates verbatim;
// on failure the Session is discarded and any partially acquired
// resource is the driver's to release.
func dispatch(ctx context.Context, op Op, tag FormatTag, path string, cfg *Config, sigs []Signature) (*Session, error) {
	d, err := lookup(tag)
	if err != nil {
		return nil, err
	}
	info := d.Info()
	if info.ReadOnly && (op == OpCreate || cfg.Flags.Has(FlagWrite)) {
		return nil, fmt.Errorf("arrbox: %s driver: %w", info.Name, ErrReadOnly)
	}

	var ds Dataset
	if op == OpCreate {
		ds, err = d.Create(ctx, path, cfg)
	} else {
		ds, err = d.Open(ctx, path, cfg)
	}
	if err != nil {
		return nil, err
	}
	cfg.Logger.Debug("arrbox: routed", "op", opName(op), "path", path, "format", tag.String())
	return newSession(tag, ds), nil
}

func opName(op Op) string {
	if op == OpCreate {
		return "create"
	}
	return "open"
}
