package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const modulePrefix = "otogi-roomdb/"

// layerRule forbids packages under importer from importing packages under
// imported. Both are paths relative to the module root.
type layerRule struct {
	importer string
	imported string
}

func (r layerRule) String() string {
	return r.importer + "* must not import " + r.imported + "*"
}

func (r layerRule) matches(importer, imported string) bool {
	return strings.HasPrefix(importer, modulePrefix+r.importer) &&
		strings.HasPrefix(imported, modulePrefix+r.imported)
}

var layerRules = []layerRule{
	{importer: "pkg/", imported: "internal/"},
	{importer: "pkg/", imported: "cmd/"},
	{importer: "pkg/otogi", imported: "pkg/roomdb"},
	{importer: "internal/", imported: "cmd/"},
}

type goPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

func (p goPackage) allImports() []string {
	return slices.Concat(p.Imports, p.TestImports, p.XTestImports)
}

type violation struct {
	importer string
	imported string
	reason   string
}

func (v violation) String() string {
	return fmt.Sprintf("%s -> %s (%s)", v.importer, v.imported, v.reason)
}

func main() {
	output, err := goList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}
	packages, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	violations := checkPackages(packages)
	if len(violations) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "arch-check: passed")
		return
	}

	_, _ = fmt.Fprintln(os.Stdout, "arch-check: architecture violations:")
	for _, found := range violations {
		_, _ = fmt.Fprintf(os.Stdout, "  - %s\n", found)
	}
	os.Exit(1)
}

func goList() ([]byte, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	cmd.Stderr = os.Stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go list: %w", err)
	}

	return output, nil
}

// decodePackages reads the concatenated JSON objects printed by go list.
func decodePackages(reader io.Reader) ([]goPackage, error) {
	decoder := json.NewDecoder(reader)
	var packages []goPackage
	for {
		var pkg goPackage
		err := decoder.Decode(&pkg)
		if errors.Is(err, io.EOF) {
			return packages, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath != "" {
			packages = append(packages, pkg)
		}
	}
}

// checkPackages returns the sorted, de-duplicated violations. Test variants
// listed by go list -test repeat their package's imports.
func checkPackages(packages []goPackage) []violation {
	var violations []violation
	for _, pkg := range packages {
		importer, _, _ := strings.Cut(pkg.ImportPath, " ")
		for _, imported := range pkg.allImports() {
			if reason := violationReason(importer, imported); reason != "" {
				violations = append(violations, violation{importer: importer, imported: imported, reason: reason})
			}
		}
	}

	slices.SortFunc(violations, func(left, right violation) int {
		return strings.Compare(left.String(), right.String())
	})

	return slices.Compact(violations)
}

func violationReason(importer, imported string) string {
	for _, rule := range layerRules {
		if rule.matches(importer, imported) {
			return rule.String()
		}
	}

	importerBackend := backendImplementation(importer)
	importedBackend := backendImplementation(imported)
	if importerBackend != "" && importedBackend != "" && importerBackend != importedBackend {
		return "backend implementations must not import each other"
	}

	return ""
}

// backendImplementation returns the backend package name below
// internal/backend, or "" for anything else.
func backendImplementation(importPath string) string {
	rest, found := strings.CutPrefix(importPath, modulePrefix+"internal/backend/")
	if !found {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")

	return name
}
