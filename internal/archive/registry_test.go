package archive_test

import (
	"errors"
	"testing"

	"comicvault/internal/archive"
	"comicvault/internal/config"
	"comicvault/internal/detect"
	"comicvault/internal/logging"
)

func TestDefaultRegistryResolvesBuiltIns(t *testing.T) {
	cfg := config.Default()
	reg, err := archive.NewDefaultRegistry(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	cases := map[detect.Subtype]archive.Format{
		detect.SubtypeZip:      archive.FormatCBZ,
		detect.SubtypeRar:      archive.FormatCBR,
		detect.SubtypeSevenZip: archive.FormatCB7,
	}
	for subtype, want := range cases {
		a, ok := reg.Resolve(subtype)
		if !ok || a.Format() != want {
			t.Fatalf("Resolve(%s) = %v, %v", subtype, a, ok)
		}
		if byFormat, ok := reg.ResolveByFormat(want); !ok || byFormat != a {
			t.Fatalf("ResolveByFormat(%s) mismatch", want)
		}
	}
	if _, ok := reg.Resolve(detect.SubtypeUnknown); ok {
		t.Fatal("unknown subtype must not resolve")
	}
	if _, ok := reg.ResolveByFormat(archive.FormatUnknown); ok {
		t.Fatal("unknown format must not resolve")
	}
}

func TestBuilderRejectsInvalidBindings(t *testing.T) {
	tests := []struct {
		name  string
		build func(*archive.Builder)
	}{
		{"empty subtype", func(b *archive.Builder) { b.Register("", archive.NewZip()) }},
		{"nil adaptor", func(b *archive.Builder) { b.Register(detect.SubtypeZip, nil) }},
		{"unknown name", func(b *archive.Builder) {
			b.Bind("zip", "cbx", map[string]archive.Adaptor{"cbz": archive.NewZip()})
		}},
		{"duplicate subtype", func(b *archive.Builder) {
			b.Register(detect.SubtypeZip, archive.NewZip()).Register(detect.SubtypeZip, archive.NewRar())
		}},
		{"adaptor on two subtypes", func(b *archive.Builder) {
			b.Register(detect.SubtypeZip, archive.NewZip()).Register("epub+zip", archive.NewZip())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := archive.NewBuilder(logging.NewNop())
			tt.build(b)
			reg, err := b.Build()
			if err == nil {
				t.Fatal("expected Build to fail")
			}
			if reg != nil {
				t.Fatal("failed Build must not return a registry")
			}
			var regErr *archive.RegistryError
			if !errors.As(err, &regErr) {
				t.Fatalf("expected RegistryError, got %T %v", err, err)
			}
		})
	}
}

func TestBuilderReportsEveryProblem(t *testing.T) {
	b := archive.NewBuilder(logging.NewNop()).
		Register("", archive.NewZip()).
		Register(detect.SubtypeRar, nil)
	_, err := b.Build()
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("expected joined error, got %T", err)
	}
	if n := len(joined.Unwrap()); n != 2 {
		t.Fatalf("expected 2 problems, got %d", n)
	}
}

func TestDefaultRegistryRejectsUnknownBinding(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Bindings = map[string]string{"zip": "cbz", "x-rar-compressed": "unrar"}
	if _, err := archive.NewDefaultRegistry(&cfg, logging.NewNop()); err == nil {
		t.Fatal("expected unknown adaptor name to fail")
	}
}
