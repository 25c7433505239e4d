package plugins

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/linht/radioconf/phy"
	"gopkg.in/yaml.v3"
)

// LibraryPlugin stores PHY request documents as YAML files in a directory.
// Documents keep their key order across load and save so hand-written
// files stay readable.
type LibraryPlugin struct {
	dir string
}

// LibraryEntry is a stored document
type LibraryEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

var errBadName = errors.New("invalid document name")

// NewLibraryPlugin creates the plugin, creating dir when missing.
func NewLibraryPlugin(dir string) (*LibraryPlugin, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required in library plugin configuration")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library dir: %w", err)
	}
	return &LibraryPlugin{dir: dir}, nil
}

// Name returns the plugin identifier
func (p *LibraryPlugin) Name() string {
	return "library"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *LibraryPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/library")

	api.Get("/", p.listDocuments)
	api.Get("/:name", p.loadDocument)
	api.Put("/:name", p.saveDocument)
	api.Delete("/:name", p.deleteDocument)
}

// Shutdown performs cleanup
func (p *LibraryPlugin) Shutdown() error {
	return nil
}

// documentPath maps a document name to its file, refusing anything that
// could leave the library directory.
func (p *LibraryPlugin) documentPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", errBadName, name)
	}
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
	if name == "" {
		return "", fmt.Errorf("%w: %q", errBadName, name)
	}
	return filepath.Join(p.dir, name+".yaml"), nil
}

// listDocuments handles GET /api/library
func (p *LibraryPlugin) listDocuments(c *fiber.Ctx) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return SendError(c, 500, err)
	}

	items := make([]LibraryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, LibraryEntry{
			Name:     strings.TrimSuffix(entry.Name(), ".yaml"),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return SendSuccess(c, items, "")
}

// loadDocument handles GET /api/library/:name
func (p *LibraryPlugin) loadDocument(c *fiber.Ctx) error {
	path, err := p.documentPath(c.Params("name"))
	if err != nil {
		return SendError(c, 400, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SendErrorMessage(c, 404, "Document not found")
		}
		return SendError(c, 500, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return SendError(c, 500, fmt.Errorf("failed to parse document: %w", err))
	}
	return SendSuccess(c, orderedValue(&root), "")
}

// saveDocument handles PUT /api/library/:name. An existing document keeps
// the order of the keys it already has; new keys are appended.
func (p *LibraryPlugin) saveDocument(c *fiber.Ctx) error {
	path, err := p.documentPath(c.Params("name"))
	if err != nil {
		return SendError(c, 400, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(c.Body(), &doc); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	if err := validateRequestDocument(doc); err != nil {
		return SendError(c, 400, err)
	}

	root := &yaml.Node{Kind: yaml.DocumentNode}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, root); err != nil || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
			root = &yaml.Node{Kind: yaml.DocumentNode}
		}
	}
	if len(root.Content) == 0 {
		root.Content = []*yaml.Node{{Kind: yaml.MappingNode}}
	}
	mergeNode(root.Content[0], doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return SendError(c, 500, fmt.Errorf("failed to serialize document: %w", err))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return SendError(c, 500, fmt.Errorf("failed to write document: %w", err))
	}
	return SendSuccess(c, nil, "Document saved")
}

// deleteDocument handles DELETE /api/library/:name
func (p *LibraryPlugin) deleteDocument(c *fiber.Ctx) error {
	path, err := p.documentPath(c.Params("name"))
	if err != nil {
		return SendError(c, 400, err)
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return SendErrorMessage(c, 404, "Document not found")
		}
		return SendError(c, 500, err)
	}
	return SendSuccess(c, nil, "Document deleted")
}

// validateRequestDocument checks the parts of a run request that can be
// judged without running it.
func validateRequestDocument(doc map[string]interface{}) error {
	family, _ := doc["family"].(string)
	f, ok := phy.Lookup(family)
	if !ok {
		return fmt.Errorf("%w: %q", phy.ErrUnknownFamily, family)
	}
	if name, ok := doc["profile"].(string); ok && name != "" {
		prof, ok := phy.LookupProfile(name)
		if !ok {
			return fmt.Errorf("%w: %q", phy.ErrUnknownProfile, name)
		}
		if prof.RequiresTRECS && !f.TRECS {
			return fmt.Errorf("profile %s: %w on %s", name, phy.ErrUnsupported, f.Name)
		}
	}
	for _, key := range []string{"inputs", "forced"} {
		if v, ok := doc[key]; ok && v != nil {
			if _, ok := v.(map[string]interface{}); !ok {
				return fmt.Errorf("%s must be a mapping", key)
			}
		}
	}
	return nil
}

// OrderedMap is a JSON object that keeps the key order of its YAML source
type OrderedMap struct {
	Keys   []string
	Values map[string]interface{}
}

// MarshalJSON writes the keys in order
func (om *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range om.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(om.Values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// orderedValue converts a YAML tree into JSON-ready values, mappings
// becoming OrderedMaps.
func orderedValue(node *yaml.Node) interface{} {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) > 0 {
			return orderedValue(node.Content[0])
		}
		return nil
	case yaml.AliasNode:
		if node.Alias != nil {
			return orderedValue(node.Alias)
		}
		return nil
	case yaml.MappingNode:
		om := &OrderedMap{Values: make(map[string]interface{}, len(node.Content)/2)}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if _, dup := om.Values[key]; !dup {
				om.Keys = append(om.Keys, key)
			}
			om.Values[key] = orderedValue(node.Content[i+1])
		}
		return om
	case yaml.SequenceNode:
		out := make([]interface{}, len(node.Content))
		for i, item := range node.Content {
			out[i] = orderedValue(item)
		}
		return out
	}

	var v interface{}
	if err := node.Decode(&v); err != nil {
		return node.Value
	}
	return v
}

// mergeNode rewrites a mapping node to hold values. Keys already present
// keep their position, keys no longer in values are dropped and new keys
// are appended in sorted order.
func mergeNode(node *yaml.Node, values map[string]interface{}) {
	seen := make(map[string]bool, len(values))
	content := node.Content[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		v, ok := values[key.Value]
		if !ok || seen[key.Value] {
			continue
		}
		seen[key.Value] = true
		if m, isMap := v.(map[string]interface{}); isMap && val.Kind == yaml.MappingNode {
			mergeNode(val, m)
		} else {
			val = newNode(v)
		}
		content = append(content, key, val)
	}

	var added []string
	for k := range values {
		if !seen[k] {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	for _, k := range added {
		content = append(content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, newNode(values[k]))
	}
	node.Content = content
}

// newNode builds a YAML node for a value decoded from JSON.
func newNode(value interface{}) *yaml.Node {
	switch v := value.(type) {
	case map[string]interface{}:
		n := &yaml.Node{Kind: yaml.MappingNode}
		mergeNode(n, v)
		return n
	case []interface{}:
		n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, item := range v {
			n.Content = append(n.Content, newNode(item))
		}
		return n
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	case float64:
		if v == float64(int64(v)) {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(int64(v), 10)}
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(v, 'g', -1, 64)}
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(value)}
}

// Register the plugin
func init() {
	Register("library", func(config map[string]interface{}) (Plugin, error) {
		return NewLibraryPlugin(configString(config, "dir", "phys"))
	})
}
