package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk policy document. Example (YAML):
//
//	allow: [ls, cat, git, go]
//	inherit: true
//	translations:
//	  windows:
//	    ls: dir
type File struct {
	Allow        []string                     `yaml:"allow" toml:"allow"`
	Inherit      bool                         `yaml:"inherit" toml:"inherit"`
	Translations map[string]map[string]string `yaml:"translations" toml:"translations"`
}

// LoadFile reads a YAML or TOML policy file, chosen by extension. With
// inherit set, the file extends the built-in allow-list and translation
// tables instead of replacing them.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var doc File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unsupported policy file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	return doc.Build()
}

// Build converts the document into a Policy
func (f File) Build() (*Policy, error) {
	allowed := f.Allow
	translations := make(map[Platform]map[string]string)

	if f.Inherit {
		allowed = append(append([]string{}, DefaultAllowed...), f.Allow...)
		for platform, table := range DefaultTranslations {
			translations[platform] = copyTable(table)
		}
	}

	for name, table := range f.Translations {
		platform := Platform(strings.ToLower(name))
		if platform != PlatformPOSIX && platform != PlatformWindows {
			return nil, fmt.Errorf("unknown platform %q in translations", name)
		}
		if translations[platform] == nil {
			translations[platform] = make(map[string]string, len(table))
		}
		for from, to := range table {
			translations[platform][from] = to
		}
	}

	if len(allowed) == 0 {
		return nil, fmt.Errorf("policy file allows no commands")
	}
	return New(allowed, translations), nil
}

func copyTable(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
