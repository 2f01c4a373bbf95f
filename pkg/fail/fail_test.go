package fail

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestWrapClassifiesOSConditions(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		err  error
		want Kind
	}{
		{"plain io stays io", KindIO, errors.New("disk on fire"), KindIO},
		{"permission upgraded", KindIO, fs.ErrPermission, KindPermission},
		{"not found upgraded", KindIO, fs.ErrNotExist, KindNotFound},
		{"wrapped not found upgraded", KindIO, fmt.Errorf("stat: %w", fs.ErrNotExist), KindNotFound},
		{"explicit kind wins", KindCorruptCache, fs.ErrNotExist, KindCorruptCache},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap(tt.kind, "op", "/some/path", tt.err)
			if got := ClassOf(err); got != tt.want {
				t.Errorf("ClassOf = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(KindIO, "op", "p", nil); err != nil {
		t.Errorf("Wrap(nil) = %v; want nil", err)
	}
}

func TestConfigIsFatalKind(t *testing.T) {
	err := Config("bad flag %q", "--nope")
	if !Is(err, KindConfig) {
		t.Errorf("Is(Config error, KindConfig) = false")
	}
	if Is(err, KindIO) {
		t.Errorf("Is(Config error, KindIO) = true")
	}
}

func TestErrorMessageIncludesOpAndPath(t *testing.T) {
	err := Wrap(KindIO, "open", "/tmp/x", errors.New("boom"))
	want := "open /tmp/x: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q; want %q", err.Error(), want)
	}
}

func TestUnwrapPreservesChain(t *testing.T) {
	inner := errors.New("inner")
	err := Wrap(KindIO, "read", "p", fmt.Errorf("outer: %w", inner))
	if !errors.Is(err, inner) {
		t.Error("errors.Is lost the wrapped chain")
	}
}

func TestClassOfForeignError(t *testing.T) {
	if got := ClassOf(errors.New("anonymous")); got != KindIO {
		t.Errorf("ClassOf(plain error) = %v; want KindIO", got)
	}
	if got := ClassOf(fs.ErrPermission); got != KindPermission {
		t.Errorf("ClassOf(fs.ErrPermission) = %v; want KindPermission", got)
	}
}
