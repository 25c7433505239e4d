package plugins

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/linht/radioconf/phy"
	"github.com/linht/radioconf/regmap"
	"github.com/linht/radioconf/seqacc"
)

// SequencerPlugin compiles sequencer programs.
type SequencerPlugin struct{}

// CompiledProgram is the compile response
type CompiledProgram struct {
	Bases   []string       `json:"bases"`
	Words   []string       `json:"words"`
	Labels  map[string]int `json:"labels,omitempty"`
	Listing string         `json:"listing"`
}

// NewSequencerPlugin creates a new sequencer plugin instance
func NewSequencerPlugin() (*SequencerPlugin, error) {
	return &SequencerPlugin{}, nil
}

// Name returns the plugin identifier
func (p *SequencerPlugin) Name() string {
	return "sequencer"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *SequencerPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/sequencer")

	api.Post("/compile", p.handleCompile)
}

// Shutdown performs cleanup
func (p *SequencerPlugin) Shutdown() error {
	return nil
}

// handleCompile handles POST /api/sequencer/compile?family=xg22 with the
// program source as the request body. Without a family only absolute
// addresses can be used.
func (p *SequencerPlugin) handleCompile(c *fiber.Ctx) error {
	var rm *regmap.Map
	if name := c.Query("family"); name != "" {
		f, ok := phy.Lookup(name)
		if !ok {
			return SendErrorMessage(c, 404, "Family not found")
		}
		rm = f.Registers
	}
	if len(c.Body()) == 0 {
		return SendErrorMessage(c, 400, "Program source required")
	}

	prog, err := seqacc.Compile(c.Body(), rm)
	if err != nil {
		slog.Debug("Sequencer compile failed", "error", err)
		return SendError(c, 400, err)
	}

	out := CompiledProgram{
		Bases:   hexWords(prog.Bases),
		Words:   hexWords(prog.Words),
		Labels:  prog.Labels,
		Listing: prog.Listing(),
	}
	return SendSuccess(c, out, fmt.Sprintf("Compiled %d words", len(prog.Words)))
}

func hexWords(words []uint32) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = fmt.Sprintf("0x%08X", w)
	}
	return out
}

// Register the plugin
func init() {
	Register("sequencer", func(config map[string]interface{}) (Plugin, error) {
		return NewSequencerPlugin()
	})
}
