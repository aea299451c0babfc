package main

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed package-schema.json
var package_schema_json string

// the shape a release's package.json must have before it is accepted.
// nothing is required and unknown fields are allowed.
var package_schema = jsonschema.MustCompileString("package-schema.json", package_schema_json)

type VPMAuthor struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

// a package.json from a release.
// only `Name` is interpreted, everything else is carried through to the output as-is.
type VPMPackage struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	DisplayName      string            `json:"displayName,omitempty"`
	Description      string            `json:"description,omitempty"`
	Unity            string            `json:"unity,omitempty"`
	UnityRelease     string            `json:"unityRelease,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	VPMDependencies  map[string]string `json:"vpmDependencies,omitempty"`
	Keywords         []string          `json:"keywords,omitempty"`
	Author           *VPMAuthor        `json:"author,omitempty"`
	DocumentationURL string            `json:"documentationUrl,omitempty"`
	ChangelogURL     string            `json:"changelogUrl,omitempty"`
	URL              string            `json:"url,omitempty"`
	License          string            `json:"license,omitempty"`
	ZipSHA256        string            `json:"zipSHA256,omitempty"`

	// the document exactly as it was published, including fields not listed above.
	raw json.RawMessage
}

func (p *VPMPackage) UnmarshalJSON(data []byte) error {
	type plain VPMPackage
	var decoded plain
	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return err
	}
	*p = VPMPackage(decoded)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (p VPMPackage) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	type plain VPMPackage
	return json.Marshal(plain(p))
}

// version => package.json
type VPMPackageVersions map[string]VPMPackage

type VPMPackageEntry struct {
	Versions VPMPackageVersions `json:"versions"`
}

// package name => versions
type VPMPackagesCollection map[string]VPMPackageEntry

// what we'll render out
type VPMRepositoryInfo struct {
	Name     string                `json:"name"`
	ID       string                `json:"id"`
	URL      string                `json:"url"`
	Author   string                `json:"author"`
	Packages VPMPackagesCollection `json:"packages"`
}

// parses the bytes of a downloaded package.json,
// validating them against the package schema first.
func parse_vpm_package(body []byte) (VPMPackage, error) {
	empty_response := VPMPackage{}

	body, err := elide_bom(body)
	if err != nil {
		return empty_response, fmt.Errorf("failed to read package.json: %w", err)
	}

	// the validator wants plain decoded values, numbers kept as `json.Number`.
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var doc any
	err = decoder.Decode(&doc)
	if err != nil {
		return empty_response, fmt.Errorf("failed to parse package.json as JSON: %w", err)
	}

	err = package_schema.Validate(doc)
	if err != nil {
		return empty_response, fmt.Errorf("package.json failed validation: %w", err)
	}

	var pkg VPMPackage
	err = json.Unmarshal(body, &pkg)
	if err != nil {
		return empty_response, fmt.Errorf("failed to parse package.json as JSON: %w", err)
	}
	return pkg, nil
}
