package deb

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// controlFieldOrder is the order dpkg's own control files use.
var controlFieldOrder = []string{
	"Package", "Version", "Architecture", "Section", "Maintainer",
	"Installed-Size", "Description",
}

// parseControl parses a debian/control-style stanza: "Field: value"
// lines, continuation lines beginning with a space, and relationship
// fields folded into Record.Dependencies.
func parseControl(r io.Reader) (Record, error) {
	rec := Record{Dependencies: make(map[Relationship]string)}
	seen := make(map[string]bool, len(controlFieldOrder))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var field, value string
	flush := func() error {
		if field == "" {
			return nil
		}
		if err := assignField(&rec, field, strings.TrimSpace(value)); err != nil {
			return err
		}
		seen[field] = true
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			// Continuation line: append, preserving the dpkg convention
			// that a lone "." on a continuation means a blank paragraph
			// line within Description.
			cont := strings.TrimPrefix(line, " ")
			if cont == "." {
				cont = ""
			}
			value += "\n" + cont
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return Record{}, repoerrors.New(repoerrors.ControlParse, "control line missing ':' separator: "+line)
		}
		if err := flush(); err != nil {
			return Record{}, err
		}
		field = strings.TrimSpace(line[:idx])
		value = line[idx+1:]
	}
	if err := scanner.Err(); err != nil {
		return Record{}, repoerrors.Wrap(repoerrors.IO, "reading control stanza", err)
	}
	if err := flush(); err != nil {
		return Record{}, err
	}

	for _, required := range requiredFields {
		if !seen[required] {
			return Record{}, repoerrors.New(repoerrors.MalformedArchive, "control stanza missing required field "+required)
		}
	}
	return rec, nil
}

// requiredFields lists the control fields that must be present for a
// stanza to be ingestible; their absence is MalformedArchive, not a
// defaulted value.
var requiredFields = []string{
	"Package", "Version", "Architecture", "Maintainer", "Description", "Installed-Size",
}

func assignField(rec *Record, field, value string) error {
	switch field {
	case "Package":
		rec.Package = value
	case "Version":
		rec.Version = value
	case "Architecture":
		rec.Architecture = value
	case "Section":
		rec.Section = value
	case "Maintainer":
		rec.Maintainer = value
	case "Description":
		rec.Description = value
	case "Installed-Size":
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return repoerrors.Wrap(repoerrors.ControlParse, "parsing Installed-Size", err)
		}
		rec.InstalledSize = n
	default:
		for _, rel := range Relationships {
			if string(rel) == field {
				rec.Dependencies[rel] = value
				return nil
			}
		}
		// Unrecognized fields (Multi-Arch, Homepage, ...) are accepted
		// and dropped; the index emitter only renders known fields.
	}
	return nil
}
