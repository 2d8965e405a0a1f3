package archive

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

func checkRead(h *ReadHandle, format Format, op string) error {
	if h == nil {
		return newError(ErrUnsupported, format, op, "", "", errors.New("nil handle"))
	}
	if h.format != format {
		return newError(ErrUnsupported, format, op, h.path, "", fmt.Errorf("handle belongs to %s adaptor", h.format))
	}
	if h.closed {
		return newError(ErrHandleClosed, format, op, h.path, "", nil)
	}
	return nil
}

func checkWrite(h *WriteHandle, format Format, op string) error {
	if h == nil {
		return newError(ErrUnsupported, format, op, "", "", errors.New("nil handle"))
	}
	if h.format != format {
		return newError(ErrUnsupported, format, op, h.path, "", fmt.Errorf("handle belongs to %s adaptor", h.format))
	}
	if h.done {
		return newError(ErrHandleClosed, format, op, h.path, "", nil)
	}
	return nil
}

// claimName validates an entry name for writing and records it.
func (h *WriteHandle) claimName(name string) error {
	clean, err := cleanEntryName(name)
	if err != nil {
		return err
	}
	if _, dup := h.names[clean]; dup {
		return fmt.Errorf("duplicate entry %q", clean)
	}
	if h.names == nil {
		h.names = make(map[string]struct{})
	}
	h.names[clean] = struct{}{}
	h.order = append(h.order, clean)
	return nil
}

func cleanEntryName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return "", errors.New("empty entry name")
	}
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || clean == "." {
		return "", fmt.Errorf("unsafe entry name %q", name)
	}
	return clean, nil
}
