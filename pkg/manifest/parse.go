package manifest

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/sidkik/repocheck/pkg/errors"
)

type xmlChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type xmlLocation struct {
	Href string `xml:"href,attr"`
}

type xmlRepomd struct {
	XMLName  xml.Name  `xml:"repomd"`
	Revision string    `xml:"revision"`
	Data     []xmlData `xml:"data"`
}

type xmlData struct {
	Type     string       `xml:"type,attr"`
	Checksum *xmlChecksum `xml:"checksum"`
	Location *xmlLocation `xml:"location"`
	Size     *string      `xml:"size"`
}

type xmlMetadata struct {
	XMLName  xml.Name     `xml:"metadata"`
	Packages []xmlPackage `xml:"package"`
}

type xmlPackage struct {
	Type     string       `xml:"type,attr"`
	Checksum *xmlChecksum `xml:"checksum"`
	Location *xmlLocation `xml:"location"`
	Size     *struct {
		Package *string `xml:"package,attr"`
	} `xml:"size"`
}

// ParseRoot parses a root manifest (repomd.xml). Any problem with the
// document is a StructuralError.
func ParseRoot(r io.Reader) (Root, error) {
	var doc xmlRepomd
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Root{}, malformed("root manifest", err)
	}
	if err := checkNamespace(doc.XMLName, rootNamespace); err != nil {
		return Root{}, malformed("root manifest", err)
	}

	root := Root{Revision: strings.TrimSpace(doc.Revision)}
	seen := map[string]struct{}{}
	for i, data := range doc.Data {
		size, err := parseSize(data.Size)
		if err != nil {
			return Root{}, malformed("root manifest", errors.WithContext(err, entryContext(i)))
		}

		d, err := fromXML(data.Type, data.Checksum, data.Location, size)
		if err == nil {
			err = checkUnique(seen, d)
		}
		if err != nil {
			return Root{}, malformed("root manifest", errors.WithContext(err, entryContext(i)))
		}
		root.Descriptors = append(root.Descriptors, d)
	}
	return root, nil
}

// ParsePackages parses a package list (primary.xml). Any problem with the
// document is a StructuralError. The kinds of the entries aren't checked
// here: a non-package entry is a per-file failure, not a malformed document.
func ParsePackages(r io.Reader) ([]FileDescriptor, error) {
	var doc xmlMetadata
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, malformed("package list", err)
	}
	if err := checkNamespace(doc.XMLName, packageNamespace); err != nil {
		return nil, malformed("package list", err)
	}

	var descriptors []FileDescriptor
	seen := map[string]struct{}{}
	for i, pkg := range doc.Packages {
		var rawSize *string
		if pkg.Size != nil {
			rawSize = pkg.Size.Package
		}

		size, err := parseSize(rawSize)
		if err != nil {
			return nil, malformed("package list", errors.WithContext(err, entryContext(i)))
		}

		d, err := fromXML(pkg.Type, pkg.Checksum, pkg.Location, size)
		if err == nil {
			err = checkUnique(seen, d)
		}
		if err != nil {
			return nil, malformed("package list", errors.WithContext(err, entryContext(i)))
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func fromXML(kind string, csum *xmlChecksum, loc *xmlLocation, size Size) (FileDescriptor, error) {
	if csum == nil {
		return FileDescriptor{}, errors.MissingFieldError{Field: "checksum"}
	}
	if loc == nil {
		return FileDescriptor{}, errors.MissingFieldError{Field: "location"}
	}
	return newDescriptor(kind, csum.Type, csum.Value, loc.Href, size)
}

// checkUnique records the path of d in seen. Two entries of the same
// manifest may not resolve to the same file, since they would be checked and
// downloaded concurrently.
func checkUnique(seen map[string]struct{}, d FileDescriptor) error {
	if _, ok := seen[d.RelativePath]; ok {
		return errors.New("duplicated path %q", d.RelativePath)
	}
	seen[d.RelativePath] = struct{}{}
	return nil
}

func parseSize(raw *string) (Size, error) {
	if raw == nil {
		return Size{}, nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(*raw), 10, 64)
	if err != nil {
		return Size{}, errors.WithContext(err, "parse size")
	}
	if n < 0 {
		return Size{}, errors.New("negative size %d", n)
	}
	return KnownSize(n), nil
}

// Documents without a namespace are accepted, but a document from a different
// namespace is most likely a different format altogether.
func checkNamespace(name xml.Name, exp string) error {
	if name.Space != "" && name.Space != exp {
		return errors.New("unexpected namespace %q for <%s>", name.Space, name.Local)
	}
	return nil
}

func entryContext(i int) string {
	return "entry " + strconv.Itoa(i+1)
}

func malformed(what string, err error) error {
	return errors.NewStructuralError("malformed %s: %s", what, err)
}
