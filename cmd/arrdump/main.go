// arrdump prints a dataset's schema, and optionally its data, in a
// compact text form. It routes through the dispatch layer, so anything
// the library can open — local classic/enhanced/legacy files or remote
// origins — dumps the same way.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/drivers"
	"github.com/nuln/arrbox/meta"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "arrdump:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		formatName string
		withData   bool
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "arrdump <path>",
		Short: "Print the schema and data of an array dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			fs := afero.NewOsFs()
			cfg := &arrbox.Config{Fs: fs, Logger: logger}
			if configPath != "" {
				loaded, err := arrbox.LoadConfig(fs, configPath)
				if err != nil {
					return err
				}
				cfg = loaded
				cfg.Fs, cfg.Logger = fs, logger
			}
			if formatName != "" {
				tag, err := arrbox.ParseFormat(formatName)
				if err != nil {
					return err
				}
				cfg.Format = tag
			}

			drivers.MustInit()
			defer func() { _ = arrbox.Finalize() }()

			ctx := cmd.Context()
			s, err := arrbox.Open(ctx, args[0], cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(ctx) }()

			return dump(ctx, cmd.OutOrStdout(), s, withData)
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "", "demand a specific format instead of sniffing")
	cmd.Flags().BoolVarP(&withData, "data", "d", false, "dump variable data as well as the schema")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file with open options")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log routing decisions")
	return cmd
}

type printer struct {
	out io.Writer
}

func (p printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func dump(ctx context.Context, out io.Writer, s *arrbox.Session, withData bool) error {
	p := printer{out: out}
	model := s.Meta()
	p.printf("format: %s\n", s.Format())
	if f, ok := s.Dataset().(arrbox.Fetcher); ok {
		p.printf("origin: %s\n", f.Origin())
	}

	return meta.Walk(model, func(path string, g *meta.Group, v *meta.Variable) error {
		if v == nil {
			p.printf("group %s\n", path)
			for _, d := range g.Dims {
				if d.Unlimited {
					p.printf("  dim %s = unlimited (%d)\n", d.Name, d.Len)
				} else {
					p.printf("  dim %s = %d\n", d.Name, d.Len)
				}
			}
			for _, t := range g.Types {
				p.printf("  type %s %s (%d bytes)\n", t.Name, t.Class, t.Size)
			}
			for _, a := range g.Attrs {
				p.printf("  :%s = %s\n", a.Name, attrValue(model, a))
			}
			return nil
		}

		p.printf("  var %s %s%s\n", v.Name, typeName(model, v.Type), dimList(model, v))
		for _, a := range v.Attrs {
			p.printf("    %s:%s = %s\n", v.Name, a.Name, attrValue(model, a))
		}
		if withData {
			if err := dumpData(ctx, p, s, model, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func typeName(model *meta.Model, id meta.TypeID) string {
	t, err := model.Type(id)
	if err != nil {
		return fmt.Sprintf("type(%d)", id)
	}
	return t.Name
}

func dimList(model *meta.Model, v *meta.Variable) string {
	if v.Rank() == 0 {
		return ""
	}
	names := make([]string, v.Rank())
	for i, id := range v.Dims {
		d, err := model.Dim(id)
		if err != nil {
			names[i] = "?"
			continue
		}
		names[i] = d.Name
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// attrValue renders an attribute's bytes in its declared type. Char
// attributes print as a quoted string, everything else as a value list.
func attrValue(model *meta.Model, a *meta.Attribute) string {
	k := meta.Kind(a.Type)
	if a.Type >= meta.UserBase {
		return fmt.Sprintf("<%s, %d elements>", typeName(model, a.Type), a.Nelems)
	}
	if k == meta.KindChar {
		return fmt.Sprintf("%q", string(a.Data))
	}
	vals := make([]string, 0, a.Nelems)
	for i := 0; i < a.Nelems && (i+1)*k.Size() <= len(a.Data); i++ {
		vals = append(vals, element(a.Data[i*k.Size():], k))
	}
	return strings.Join(vals, ", ")
}

func element(b []byte, k meta.Kind) string {
	switch k {
	case meta.KindByte:
		return fmt.Sprintf("%d", int8(b[0]))
	case meta.KindUByte:
		return fmt.Sprintf("%d", b[0])
	case meta.KindShort:
		return fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(b)))
	case meta.KindUShort:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint16(b))
	case meta.KindInt:
		return fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(b)))
	case meta.KindUInt:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint32(b))
	case meta.KindInt64:
		return fmt.Sprintf("%d", int64(binary.LittleEndian.Uint64(b)))
	case meta.KindUInt64:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint64(b))
	case meta.KindFloat:
		return fmt.Sprintf("%g", math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case meta.KindDouble:
		return fmt.Sprintf("%g", math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case meta.KindChar:
		return fmt.Sprintf("%q", b[0])
	default:
		return "?"
	}
}

// dumpData reads the variable whole and prints one line of values.
// Large variables are truncated; arrdump is an inspector, not an
// exporter.
const maxDumpElements = 64

func dumpData(ctx context.Context, p printer, s *arrbox.Session, model *meta.Model, v *meta.Variable) error {
	shape, err := model.Shape(v)
	if err != nil {
		return err
	}
	total := uint64(1)
	for _, n := range shape {
		total *= n
	}
	elem := model.TypeSize(v.Type)
	if elem == 0 || total == 0 {
		return nil
	}

	start := make([]uint64, len(shape))
	buf := make([]byte, total*uint64(elem))
	if err := s.GetVara(ctx, v.ID, start, shape, buf, arrbox.MemNative); err != nil {
		return err
	}

	k := meta.Kind(v.Type)
	n := int(total)
	truncated := false
	if n > maxDumpElements {
		n, truncated = maxDumpElements, true
	}
	vals := make([]string, n)
	if v.Type >= meta.UserBase {
		for i := range vals {
			vals[i] = fmt.Sprintf("0x%x", buf[i*elem:(i+1)*elem])
		}
	} else {
		for i := range vals {
			vals[i] = element(buf[i*elem:], k)
		}
	}
	line := strings.Join(vals, ", ")
	if truncated {
		line += fmt.Sprintf(", ... (%d elements)", total)
	}
	p.printf("    %s = %s\n", v.Name, line)
	return nil
}
