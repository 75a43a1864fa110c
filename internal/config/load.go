package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
	"github.com/specialistvlad/telemetryhub/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// fileConfig mirrors the HCL file layout. Every attribute is optional.
type fileConfig struct {
	Listen    *string `hcl:"listen"`
	LogLevel  *string `hcl:"log_level"`
	LogFormat *string `hcl:"log_format"`

	Ingest *ingestBlock `hcl:"ingest,block"`
	Feed   *feedBlock   `hcl:"feed,block"`
	Chain  *chainBlock  `hcl:"chain,block"`
}

type ingestBlock struct {
	Path            *string  `hcl:"path"`
	RatePerSec      *float64 `hcl:"rate_per_sec"`
	Burst           *int     `hcl:"burst"`
	MaxMessageBytes *int64   `hcl:"max_msg_bytes"`
	IdleTimeout     *string  `hcl:"idle_timeout"`
}

type feedBlock struct {
	Path *string `hcl:"path"`
}

type chainBlock struct {
	StaleAfter    *string `hcl:"stale_after"`
	PruneInterval *string `hcl:"prune_interval"`
	EmptyGrace    *string `hcl:"empty_grace"`
}

// Load applies the HCL config at path on top of base. path may be a single
// file or a directory, whose .hcl files are applied in lexical order.
func Load(ctx context.Context, path string, base Hub) (Hub, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFiles(path, ".hcl")
	if err != nil {
		return base, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	hub := base
	for _, file := range files {
		logger.Debug("Decoding hub config file.", "path", file)
		src, err := os.ReadFile(file)
		if err != nil {
			return base, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		if hub, err = Parse(ctx, src, file, hub); err != nil {
			return base, err
		}
	}
	return hub, nil
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(ctx context.Context, src []byte, filename string, base Hub) (Hub, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return base, fmt.Errorf("failed to parse HCL file %s: %s", filename, diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, evalContext(), &fc)
	if diags.HasErrors() {
		return base, fmt.Errorf("failed to decode HCL file %s: %s", filename, diags.Error())
	}

	hub, err := fc.apply(base)
	if err != nil {
		return base, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	ctxlog.FromContext(ctx).Debug("Successfully decoded hub config file.", "path", filename)
	return hub, nil
}

// evalContext exposes the process environment as the env object.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

func (fc *fileConfig) apply(h Hub) (Hub, error) {
	setString(&h.Listen, fc.Listen)
	setString(&h.LogLevel, fc.LogLevel)
	setString(&h.LogFormat, fc.LogFormat)

	if b := fc.Ingest; b != nil {
		setString(&h.IngestPath, b.Path)
		if b.RatePerSec != nil {
			h.RatePerSec = *b.RatePerSec
		}
		if b.Burst != nil {
			h.Burst = *b.Burst
		}
		if b.MaxMessageBytes != nil {
			h.MaxMessageBytes = *b.MaxMessageBytes
		}
		if err := setDuration(&h.IdleTimeout, "idle_timeout", b.IdleTimeout); err != nil {
			return h, err
		}
	}
	if b := fc.Feed; b != nil {
		setString(&h.FeedPath, b.Path)
	}
	if b := fc.Chain; b != nil {
		if err := setDuration(&h.StaleAfter, "stale_after", b.StaleAfter); err != nil {
			return h, err
		}
		if err := setDuration(&h.PruneInterval, "prune_interval", b.PruneInterval); err != nil {
			return h, err
		}
		if err := setDuration(&h.EmptyGrace, "empty_grace", b.EmptyGrace); err != nil {
			return h, err
		}
	}
	return h, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, name string, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
