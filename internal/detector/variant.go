package detector

import (
	"context"
	"fmt"
	"runtime"

	"gocv.io/x/gocv"
	"golang.org/x/sys/cpu"
)

// Variant identifies a build of the detection runtime.
type Variant string

const (
	VariantParallelVector Variant = "parallel_vector"
	VariantVector         Variant = "vector"
	VariantParallel       Variant = "parallel"
	VariantBaseline       Variant = "baseline"
)

// variantPreference lists variants from most to least optimized.
var variantPreference = []Variant{
	VariantParallelVector,
	VariantVector,
	VariantParallel,
	VariantBaseline,
}

// Capabilities describes what the host can run.
type Capabilities struct {
	Parallel bool
	Vector   bool
}

// ProbeCapabilities inspects the current host.
func ProbeCapabilities() Capabilities {
	return Capabilities{
		Parallel: runtime.NumCPU() > 1,
		Vector:   cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD,
	}
}

// Supports reports whether the host can run the variant.
func (c Capabilities) Supports(v Variant) bool {
	switch v {
	case VariantParallelVector:
		return c.Parallel && c.Vector
	case VariantVector:
		return c.Vector
	case VariantParallel:
		return c.Parallel
	case VariantBaseline:
		return true
	default:
		return false
	}
}

// ParseVariant converts a configuration key to a Variant.
func ParseVariant(s string) (Variant, error) {
	for _, v := range variantPreference {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown runtime variant %q", s)
}

// SelectVariant picks the most optimized variant that has a path and is
// supported by caps. It returns false when none qualifies.
func SelectVariant(available map[Variant]string, caps Capabilities) (Variant, string, bool) {
	for _, v := range variantPreference {
		path := available[v]
		if path == "" || !caps.Supports(v) {
			continue
		}
		return v, path, true
	}
	return "", "", false
}

// ModuleLoader loads the runtime module found at uri.
type ModuleLoader interface {
	Load(ctx context.Context, variant Variant, uri string) error
}

// ModuleLoaderFunc adapts a function to ModuleLoader.
type ModuleLoaderFunc func(ctx context.Context, variant Variant, uri string) error

// Load calls f.
func (f ModuleLoaderFunc) Load(ctx context.Context, variant Variant, uri string) error {
	return f(ctx, variant, uri)
}

// nativeLoader checks that the linked OpenCV runtime responds.
type nativeLoader struct{}

func (nativeLoader) Load(ctx context.Context, variant Variant, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if gocv.OpenCVVersion() == "" {
		return fmt.Errorf("opencv runtime for %s (%s) did not report a version", variant, uri)
	}
	return nil
}
