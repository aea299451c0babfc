package main

import (
	"bytes"
	"encoding/json"
	"strings"
)

type RepositoryGenerator struct {
	name   string
	id     string
	url    string
	author string
}

func NewRepositoryGenerator(name, id, url, author string) *RepositoryGenerator {
	return &RepositoryGenerator{
		name:   name,
		id:     id,
		url:    url,
		author: author,
	}
}

func (g *RepositoryGenerator) GenerateRepository(packages VPMPackagesCollection) VPMRepositoryInfo {
	return VPMRepositoryInfo{
		Name:     g.name,
		ID:       g.id,
		URL:      g.url,
		Author:   g.author,
		Packages: packages,
	}
}

// renders the repository as JSON, on a single line when `minified`.
// '&', '<' and '>' are left alone, URLs are full of them.
func serialize_repository(repository VPMRepositoryInfo, minified bool) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if !minified {
		encoder.SetIndent("", "  ")
	}
	err := encoder.Encode(repository)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
