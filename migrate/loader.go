package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// migrationFileRe matches "<version>_<name>.up.sql". Versions are dotted
// numeric strings ("0.3.0") or plain sequence numbers ("0012").
var migrationFileRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)*)_([A-Za-z0-9_-]+)\.up\.sql$`)

// manifest is the optional JSON sidecar next to a migration pair.
type manifest struct {
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on"`
}

// manifestSchema validates sidecar files before they are trusted.
const manifestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"description": {"type": "string"},
		"depends_on": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"additionalProperties": false
}`

// LoadDir reads every migration under dir. Forward bodies come from
// "<version>_<name>.up.sql"; "<version>_<name>.down.sql" supplies the
// rollback body and "<version>_<name>.json" an optional manifest carrying
// description and depends_on. Results are sorted by version so the planner
// breaks ties deterministically.
func LoadDir(dir string) ([]*Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []*Migration
	seen := make(map[string]string) // version -> filename
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFileRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, name := match[1], match[2]
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s (%s and %s)", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		m, err := loadMigration(dir, entry.Name(), version, name)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func loadMigration(dir, filename, version, name string) (*Migration, error) {
	path := filepath.Join(dir, filename)
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	m := &Migration{
		ID:      version + "_" + name,
		Version: version,
		Name:    name,
		SQL:     string(body),
		Source:  path,
	}
	m.Checksum = Checksum(m.SQL)

	if info, err := os.Stat(path); err == nil {
		m.CreatedAt = info.ModTime()
	}

	base := strings.TrimSuffix(filename, ".up.sql")
	down, err := os.ReadFile(filepath.Join(dir, base+".down.sql"))
	if err == nil {
		m.RollbackSQL = string(down)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s.down.sql: %w", base, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, base+".json"))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.json: %w", base, err)
	}
	parsed, err := parseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s.json: %w", base, err)
	}
	m.Description = parsed.Description
	m.DependsOn = parsed.DependsOn
	return m, nil
}

// parseManifest validates data against the manifest schema, then decodes it.
func parseManifest(data []byte) (*manifest, error) {
	schemaLoader := gojsonschema.NewStringLoader(manifestSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, errors.New(strings.Join(messages, "; "))
	}

	var parsed manifest
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
