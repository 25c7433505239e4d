package plugins

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/linht/radioconf/calc"
	"github.com/linht/radioconf/emit"
	"github.com/linht/radioconf/phy"
)

// Calculator defaults
const (
	DefaultHistorySize = 64
	DefaultRunTimeout  = 10 * time.Second
)

// CalculatorPlugin runs PHY calculations and keeps the latest results.
type CalculatorPlugin struct {
	historySize int
	timeout     time.Duration

	runs   []*phy.Result
	byID   map[string]*phy.Result
	runsMu sync.RWMutex
}

// RunSummary is the history listing entry of a run.
type RunSummary struct {
	ID       string    `json:"id"`
	Family   string    `json:"family"`
	Profile  string    `json:"profile"`
	Created  time.Time `json:"created"`
	Warnings int       `json:"warnings"`
}

// FamilyInfo describes a chip family for clients.
type FamilyInfo struct {
	Name     string     `json:"name"`
	XtalHz   float64    `json:"xtal_hz"`
	IFHz     float64    `json:"if_hz"`
	TRECS    bool       `json:"trecs"`
	Bands    []phy.Band `json:"bands"`
	Profiles []string   `json:"profiles"`
}

// NewCalculatorPlugin creates a calculator keeping historySize results.
func NewCalculatorPlugin(historySize int, timeout time.Duration) (*CalculatorPlugin, error) {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &CalculatorPlugin{
		historySize: historySize,
		timeout:     timeout,
		byID:        make(map[string]*phy.Result),
	}, nil
}

// Name returns the plugin identifier
func (p *CalculatorPlugin) Name() string {
	return "calculator"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *CalculatorPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/calculator")

	api.Post("/run", p.handleRun)
	api.Get("/runs", p.listRuns)
	api.Get("/runs/:id", p.getRun)
	api.Get("/families", p.listFamilies)
	api.Get("/families/:family/profiles", p.listProfiles)
	api.Get("/export/:id", p.export)

	// Streams the steps of a calculation as they complete
	api.Get("/ws", websocket.New(p.handleTrace))
}

// Shutdown performs cleanup
func (p *CalculatorPlugin) Shutdown() error {
	p.runsMu.Lock()
	defer p.runsMu.Unlock()
	p.runs = nil
	p.byID = make(map[string]*phy.Result)
	return nil
}

// calculate runs req under a fresh run id and records the result.
func (p *CalculatorPlugin) calculate(ctx context.Context, req phy.Request, observe func(calc.Step)) (*phy.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id := uuid.New().String()
	req.Log = slog.Default().With("run_id", id, "family", req.Family, "profile", req.Profile)
	res, err := phy.Run(ctx, req, observe)
	if err != nil {
		req.Log.Warn("PHY calculation failed", "error", err)
		return nil, err
	}
	res.ID = id
	p.store(res)
	return res, nil
}

func (p *CalculatorPlugin) store(res *phy.Result) {
	p.runsMu.Lock()
	defer p.runsMu.Unlock()

	p.runs = append(p.runs, res)
	p.byID[res.ID] = res
	for len(p.runs) > p.historySize {
		delete(p.byID, p.runs[0].ID)
		p.runs = p.runs[1:]
	}
}

func (p *CalculatorPlugin) lookup(id string) (*phy.Result, bool) {
	p.runsMu.RLock()
	defer p.runsMu.RUnlock()
	res, ok := p.byID[id]
	return res, ok
}

// handleRun handles POST /api/calculator/run
func (p *CalculatorPlugin) handleRun(c *fiber.Ctx) error {
	var req phy.Request
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	if req.Family == "" {
		return SendErrorMessage(c, 400, "Family required")
	}

	res, err := p.calculate(c.UserContext(), req, nil)
	if err != nil {
		return SendError(c, calcStatus(err), err)
	}
	return SendSuccess(c, res, fmt.Sprintf("Calculated %d registers", len(res.Registers)))
}

// listRuns handles GET /api/calculator/runs, newest first
func (p *CalculatorPlugin) listRuns(c *fiber.Ctx) error {
	p.runsMu.RLock()
	defer p.runsMu.RUnlock()

	out := make([]RunSummary, 0, len(p.runs))
	for i := len(p.runs) - 1; i >= 0; i-- {
		r := p.runs[i]
		out = append(out, RunSummary{
			ID:       r.ID,
			Family:   r.Family,
			Profile:  r.Profile,
			Created:  r.Created,
			Warnings: len(r.Warnings),
		})
	}
	return SendSuccess(c, out, "")
}

// getRun handles GET /api/calculator/runs/:id
func (p *CalculatorPlugin) getRun(c *fiber.Ctx) error {
	res, ok := p.lookup(c.Params("id"))
	if !ok {
		return SendErrorMessage(c, 404, "Run not found")
	}
	return SendSuccess(c, res, "")
}

func (p *CalculatorPlugin) listFamilies(c *fiber.Ctx) error {
	var out []FamilyInfo
	for _, f := range phy.Families() {
		info := FamilyInfo{Name: f.Name, XtalHz: f.XtalHz, IFHz: f.IFHz, TRECS: f.TRECS, Bands: f.Bands}
		for _, prof := range phy.Profiles(f) {
			info.Profiles = append(info.Profiles, prof.Name)
		}
		out = append(out, info)
	}
	return SendSuccess(c, out, "")
}

func (p *CalculatorPlugin) listProfiles(c *fiber.Ctx) error {
	f, ok := phy.Lookup(c.Params("family"))
	if !ok {
		return SendErrorMessage(c, 404, "Family not found")
	}
	return SendSuccess(c, phy.Profiles(f), "")
}

// export handles GET /api/calculator/export/:id?format=yaml|json|c|seq
func (p *CalculatorPlugin) export(c *fiber.Ctx) error {
	res, ok := p.lookup(c.Params("id"))
	if !ok {
		return SendErrorMessage(c, 404, "Run not found")
	}
	format, err := emit.ParseFormat(c.Query("format", string(emit.YAML)))
	if err != nil {
		return SendError(c, 400, err)
	}

	var buf bytes.Buffer
	if err := emit.Write(&buf, format, res); err != nil {
		return SendError(c, 500, err)
	}
	c.Attachment(res.Family + "_" + res.Profile + format.Extension())
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Send(buf.Bytes())
}

// Register the plugin
func init() {
	Register("calculator", func(config map[string]interface{}) (Plugin, error) {
		timeout := time.Duration(configInt(config, "timeout_ms", 0)) * time.Millisecond
		return NewCalculatorPlugin(configInt(config, "history_size", 0), timeout)
	})
}
