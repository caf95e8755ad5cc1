package region

import (
	"context"
	"os"
)

// Source yields the ambient locale or timezone signal.
type Source interface {
	Locale() string
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func() string

// Locale implements Source.
func (f SourceFunc) Locale() string { return f() }

// Static returns a Source that always yields signal.
func Static(signal string) Source {
	return SourceFunc(func() string { return signal })
}

// Env returns a Source that reads the process environment: TZ first, then
// LC_ALL, LC_MESSAGES and LANG.
func Env() Source {
	return SourceFunc(func() string {
		for _, key := range []string{"TZ", "LC_ALL", "LC_MESSAGES", "LANG"} {
			if v := os.Getenv(key); v != "" {
				return v
			}
		}
		return ""
	})
}

type ctxKey struct{}

// WithLocale attaches a per-request locale or timezone signal to ctx.
func WithLocale(ctx context.Context, signal string) context.Context {
	return context.WithValue(ctx, ctxKey{}, signal)
}

// LocaleFromContext reads a per-request signal from ctx.
func LocaleFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxKey{})
	s, ok := v.(string)
	return s, ok && s != ""
}

// Resolver classifies the ambient signal of a Source.
type Resolver struct {
	source Source
}

// NewResolver creates a Resolver over source. A nil source reads the
// process environment.
func NewResolver(source Source) *Resolver {
	if source == nil {
		source = Env()
	}
	return &Resolver{source: source}
}

// Resolve classifies the ambient signal.
func (r *Resolver) Resolve() Region {
	return Classify(r.source.Locale())
}

// ResolveContext prefers a signal attached with WithLocale and falls back to
// the ambient one.
func (r *Resolver) ResolveContext(ctx context.Context) Region {
	if signal, ok := LocaleFromContext(ctx); ok {
		return Classify(signal)
	}
	return r.Resolve()
}
