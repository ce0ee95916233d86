package deb

import (
	"bytes"
	"debug/elf"
	"strings"
)

// probeELF inspects content for an ELF header and, if present, returns
// the SoDep rows it implies: the shared object it provides (DT_SONAME)
// and the shared objects it requires (DT_NEEDED). Non-ELF content
// (scripts, data files, static archives) yields no rows and no
// error — probing is best-effort.
func probeELF(path string, content []byte) []SoDep {
	if len(content) < 4 || !bytes.Equal(content[:4], []byte(elf.ELFMAG)) {
		return nil
	}

	f, err := elf.NewFile(bytes.NewReader(content))
	if err != nil {
		return nil
	}
	defer f.Close()

	var deps []SoDep

	if soname, ok := dynString(f, elf.DT_SONAME); ok {
		deps = append(deps, SoDep{Depends: 0, Name: soname})
	} else if isSharedObject(f) {
		// No DT_SONAME tag: libraries without one are keyed by their
		// basename, matching ldconfig's fallback behavior.
		deps = append(deps, SoDep{Depends: 0, Name: base(path)})
	}

	for _, needed := range dynStrings(f, elf.DT_NEEDED) {
		deps = append(deps, SoDep{Depends: 1, Name: needed})
	}

	return deps
}

func isSharedObject(f *elf.File) bool {
	return f.Type == elf.ET_DYN
}

// dynString returns the first dynamic string table entry tagged tag.
func dynString(f *elf.File, tag elf.DynTag) (string, bool) {
	vals := dynStrings(f, tag)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// dynStrings returns every dynamic string table entry tagged tag, in
// the order they appear in .dynamic. Binaries with no .dynamic
// section (static executables) simply yield nothing.
func dynStrings(f *elf.File, tag elf.DynTag) []string {
	vals, err := f.DynString(tag)
	if err != nil {
		return nil
	}
	return vals
}

func base(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
