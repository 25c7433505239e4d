package plugins

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/linht/radioconf/phy"
	"github.com/linht/radioconf/regmap"
)

// RegistersPlugin serves the register databases of the chip families.
type RegistersPlugin struct{}

// FieldInfo describes a field for the UI
type FieldInfo struct {
	Name     string        `json:"name"`
	Register string        `json:"register"`
	Address  string        `json:"address"`
	Offset   uint          `json:"offset"`
	Width    uint          `json:"width"`
	Mask     string        `json:"mask"`
	Access   regmap.Access `json:"access"`
	Signed   bool          `json:"signed,omitempty"`
	Min      int64         `json:"min"`
	Max      int64         `json:"max"`
	Desc     string        `json:"desc,omitempty"`
}

// RegisterInfo describes a register and its fields
type RegisterInfo struct {
	Name    string      `json:"name"`
	Address string      `json:"address"`
	Reset   string      `json:"reset"`
	Desc    string      `json:"desc,omitempty"`
	Fields  []FieldInfo `json:"fields"`
}

// DecodedField is one field of a decoded register word
type DecodedField struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
	Hex   string `json:"hex"`
}

// NewRegistersPlugin creates a new registers plugin instance
func NewRegistersPlugin() (*RegistersPlugin, error) {
	return &RegistersPlugin{}, nil
}

// Name returns the plugin identifier
func (p *RegistersPlugin) Name() string {
	return "registers"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *RegistersPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/registers")

	api.Get("/:family", p.handleList)
	api.Get("/:family/:name", p.handleLookup)
	api.Post("/:family/:name/decode", p.handleDecode)
}

// Shutdown performs cleanup
func (p *RegistersPlugin) Shutdown() error {
	return nil
}

func fieldInfo(f *regmap.Field) FieldInfo {
	lo, hi := f.Range()
	return FieldInfo{
		Name:     f.FullName(),
		Register: f.Register.FullName(),
		Address:  fmt.Sprintf("0x%08X", f.Register.Address()),
		Offset:   f.Offset,
		Width:    f.Width,
		Mask:     fmt.Sprintf("0x%08X", f.Mask()),
		Access:   f.Access,
		Signed:   f.Signed,
		Min:      lo,
		Max:      hi,
		Desc:     f.Desc,
	}
}

func registerInfo(r *regmap.Register) RegisterInfo {
	info := RegisterInfo{
		Name:    r.FullName(),
		Address: fmt.Sprintf("0x%08X", r.Address()),
		Reset:   fmt.Sprintf("0x%08X", r.Reset),
		Desc:    r.Desc,
		Fields:  make([]FieldInfo, 0, len(r.Fields)),
	}
	for _, f := range r.Fields {
		info.Fields = append(info.Fields, fieldInfo(f))
	}
	return info
}

func familyMap(c *fiber.Ctx) (*regmap.Map, bool) {
	f, ok := phy.Lookup(c.Params("family"))
	if !ok {
		return nil, false
	}
	return f.Registers, true
}

// handleList handles GET /api/registers/:family
func (p *RegistersPlugin) handleList(c *fiber.Ctx) error {
	m, ok := familyMap(c)
	if !ok {
		return SendErrorMessage(c, 404, "Family not found")
	}
	regs := m.Registers()
	out := make([]RegisterInfo, 0, len(regs))
	for _, r := range regs {
		out = append(out, registerInfo(r))
	}
	return SendSuccess(c, out, "")
}

// handleLookup handles GET /api/registers/:family/:name for a register
// or a field name
func (p *RegistersPlugin) handleLookup(c *fiber.Ctx) error {
	m, ok := familyMap(c)
	if !ok {
		return SendErrorMessage(c, 404, "Family not found")
	}
	name := c.Params("name")
	if r, ok := m.Register(name); ok {
		return SendSuccess(c, registerInfo(r), "")
	}
	if f, ok := m.Field(name); ok {
		return SendSuccess(c, fieldInfo(f), "")
	}
	return SendErrorMessage(c, 404, "Register not found")
}

// handleDecode handles POST /api/registers/:family/:name/decode with a
// body of {"value": 1234} or {"value": "0x4d2"}
func (p *RegistersPlugin) handleDecode(c *fiber.Ctx) error {
	m, ok := familyMap(c)
	if !ok {
		return SendErrorMessage(c, 404, "Family not found")
	}
	r, ok := m.Register(c.Params("name"))
	if !ok {
		return SendErrorMessage(c, 404, "Register not found")
	}

	var req struct {
		Value interface{} `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	word, err := parseWord(req.Value)
	if err != nil {
		return SendErrorMessage(c, 400, err.Error())
	}

	fields := regmap.Decode(r, word)
	out := make([]DecodedField, 0, len(fields))
	for _, fv := range fields {
		out = append(out, DecodedField{
			Name:  fv.Field.FullName(),
			Value: fv.Value,
			Hex:   fmt.Sprintf("0x%X", (word&fv.Field.Mask())>>fv.Field.Offset),
		})
	}
	return SendSuccess(c, fiber.Map{
		"register": r.FullName(),
		"value":    fmt.Sprintf("0x%08X", word),
		"fields":   out,
	}, "")
}

func parseWord(v interface{}) (uint32, error) {
	switch x := v.(type) {
	case float64:
		if x < 0 || x > 0xFFFFFFFF || x != float64(uint32(x)) {
			return 0, fmt.Errorf("value %v does not fit a register", x)
		}
		return uint32(x), nil
	case string:
		n, err := strconv.ParseUint(x, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid register value %q", x)
		}
		return uint32(n), nil
	}
	return 0, fmt.Errorf("value required")
}

// Register the plugin
func init() {
	Register("registers", func(config map[string]interface{}) (Plugin, error) {
		return NewRegistersPlugin()
	})
}
