package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"comicvault/internal/config"
	"comicvault/internal/detect"
	"comicvault/internal/logging"
	"comicvault/internal/services/p7zip"
)

// Registry maps detected content subtypes to adaptors. It is immutable once
// built and safe for concurrent lookups.
type Registry struct {
	bySubtype map[detect.Subtype]Adaptor
	byFormat  map[Format]Adaptor
}

// Resolve returns the adaptor bound to subtype. There is no fallback.
func (r *Registry) Resolve(subtype detect.Subtype) (Adaptor, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.bySubtype[subtype]
	return a, ok
}

// ResolveByFormat returns the adaptor serving a container family.
func (r *Registry) ResolveByFormat(format Format) (Adaptor, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.byFormat[format]
	return a, ok
}

// Bindings lists subtype to format pairs in subtype order.
func (r *Registry) Bindings() [][2]string {
	if r == nil {
		return nil
	}
	out := make([][2]string, 0, len(r.bySubtype))
	for subtype, adaptor := range r.bySubtype {
		out = append(out, [2]string{string(subtype), string(adaptor.Format())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

type binding struct {
	subtype string
	name    string
	adaptor Adaptor
}

// Builder collects bindings and validates them all at once in Build.
type Builder struct {
	logger   *slog.Logger
	bindings []binding
}

// NewBuilder starts an empty registry.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logging.NewComponentLogger(logger, "archive")}
}

// Register binds subtype to adaptor.
func (b *Builder) Register(subtype detect.Subtype, adaptor Adaptor) *Builder {
	name := ""
	if adaptor != nil {
		name = strings.ToLower(string(adaptor.Format()))
	}
	b.bindings = append(b.bindings, binding{subtype: strings.TrimSpace(string(subtype)), name: name, adaptor: adaptor})
	return b
}

// Bind resolves an adaptor by name from catalog and binds it to subtype.
// Unknown names are reported by Build.
func (b *Builder) Bind(subtype, name string, catalog map[string]Adaptor) *Builder {
	name = strings.ToLower(strings.TrimSpace(name))
	b.bindings = append(b.bindings, binding{subtype: strings.TrimSpace(subtype), name: name, adaptor: catalog[name]})
	return b
}

// Build validates every binding. Any invalid binding fails the whole build;
// each problem is logged and all are returned joined.
func (b *Builder) Build() (*Registry, error) {
	reg := &Registry{
		bySubtype: make(map[detect.Subtype]Adaptor, len(b.bindings)),
		byFormat:  make(map[Format]Adaptor, len(b.bindings)),
	}
	formatOwner := make(map[Format]string, len(b.bindings))
	var problems []error
	reject := func(bd binding, reason string) {
		problem := &RegistryError{Subtype: bd.subtype, Adaptor: bd.name, Reason: reason}
		logging.Fail(b.logger, "archive binding rejected",
			logging.Problem{Event: "registry_binding_rejected", Hint: "fix [archive.bindings] in the config file"},
			logging.String("subtype", bd.subtype),
			logging.String("adaptor", bd.name),
			logging.String("reason", reason),
		)
		problems = append(problems, problem)
	}

	for _, bd := range b.bindings {
		switch {
		case bd.subtype == "":
			reject(bd, "empty subtype")
			continue
		case bd.adaptor == nil && bd.name != "":
			reject(bd, "unknown adaptor name")
			continue
		case bd.adaptor == nil:
			reject(bd, "nil adaptor")
			continue
		case bd.adaptor.Format() == "":
			reject(bd, "adaptor has empty format tag")
			continue
		}
		subtype := detect.Subtype(bd.subtype)
		if _, dup := reg.bySubtype[subtype]; dup {
			reject(bd, "subtype already bound")
			continue
		}
		format := bd.adaptor.Format()
		if owner, dup := formatOwner[format]; dup {
			reject(bd, fmt.Sprintf("adaptor already bound to subtype %q", owner))
			continue
		}
		reg.bySubtype[subtype] = bd.adaptor
		reg.byFormat[format] = bd.adaptor
		formatOwner[format] = bd.subtype
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return reg, nil
}

// Catalog returns the built-in adaptors keyed by their config names.
func Catalog(cfg *config.Config) map[string]Adaptor {
	var timeout time.Duration
	sevenZipBinary := "7z"
	if cfg != nil {
		timeout = cfg.IOTimeout()
		sevenZipBinary = cfg.Archive.SevenZipBinary
	}
	client, err := p7zip.New(sevenZipBinary, timeout)
	if err != nil {
		client = nil
	}
	return map[string]Adaptor{
		config.AdaptorCBZ: NewZip(WithIOTimeout(timeout)),
		config.AdaptorCBR: NewRar(WithIOTimeout(timeout)),
		config.AdaptorCB7: NewSevenZip(client, WithIOTimeout(timeout)),
	}
}

// NewDefaultRegistry builds the registry described by [archive.bindings].
func NewDefaultRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	bindings := config.DefaultBindings()
	if cfg != nil && len(cfg.Archive.Bindings) > 0 {
		bindings = cfg.Archive.Bindings
	}
	subtypes := make([]string, 0, len(bindings))
	for subtype := range bindings {
		subtypes = append(subtypes, subtype)
	}
	sort.Strings(subtypes)

	catalog := Catalog(cfg)
	builder := NewBuilder(logger)
	for _, subtype := range subtypes {
		builder.Bind(subtype, bindings[subtype], catalog)
	}
	return builder.Build()
}
