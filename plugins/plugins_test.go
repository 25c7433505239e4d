package plugins

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"gotest.tools/v3/assert"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func newTestApp(t *testing.T, ps ...Plugin) *fiber.App {
	t.Helper()
	app := fiber.New()
	for _, p := range ps {
		p.RegisterRoutes(app)
	}
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	assert.NilError(t, err)
	raw, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		assert.NilError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env, raw
}

const runBody = `{"family":"xg1","profile":"base","inputs":{"base_frequency_hz":868e6,"bitrate":100000,"modulation_type":"FSK2","deviation":50000}}`

func TestCalculatorRunAndHistory(t *testing.T) {
	calc, err := NewCalculatorPlugin(2, 0)
	assert.NilError(t, err)
	app := newTestApp(t, calc)

	status, env, _ := do(t, app, http.MethodPost, "/api/calculator/run", runBody)
	assert.Equal(t, status, 200, env.Error)
	var res struct {
		ID        string `json:"id"`
		Family    string `json:"family"`
		Registers []struct {
			Name string `json:"name"`
		} `json:"registers"`
	}
	assert.NilError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, res.Family, "xg1")
	assert.Assert(t, res.ID != "")
	assert.Assert(t, len(res.Registers) > 0)

	status, env, _ = do(t, app, http.MethodGet, "/api/calculator/runs/"+res.ID, "")
	assert.Equal(t, status, 200)

	status, _, raw := do(t, app, http.MethodGet, "/api/calculator/export/"+res.ID+"?format=c", "")
	assert.Equal(t, status, 200)
	assert.Assert(t, strings.Contains(string(raw), "phy_xg1_base_writes"), string(raw))

	// The history keeps two runs; the first falls out on the third.
	do(t, app, http.MethodPost, "/api/calculator/run", runBody)
	do(t, app, http.MethodPost, "/api/calculator/run", runBody)
	status, _, _ = do(t, app, http.MethodGet, "/api/calculator/runs/"+res.ID, "")
	assert.Equal(t, status, 404)

	_, env, _ = do(t, app, http.MethodGet, "/api/calculator/runs", "")
	var runs []RunSummary
	assert.NilError(t, json.Unmarshal(env.Data, &runs))
	assert.Equal(t, len(runs), 2)
	assert.Assert(t, !runs[0].Created.Before(runs[1].Created))
}

func TestCalculatorErrors(t *testing.T) {
	calc, _ := NewCalculatorPlugin(0, 0)
	app := newTestApp(t, calc)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad json", http.MethodPost, "/api/calculator/run", "{", 400},
		{"no family", http.MethodPost, "/api/calculator/run", `{"inputs":{}}`, 400},
		{"unknown family", http.MethodPost, "/api/calculator/run", `{"family":"xg99"}`, 404},
		{"unknown profile", http.MethodPost, "/api/calculator/run", `{"family":"xg1","profile":"zigbee"}`, 404},
		{"missing input", http.MethodPost, "/api/calculator/run", `{"family":"xg1","inputs":{"bitrate":1000}}`, 400},
		{"no band", http.MethodPost, "/api/calculator/run",
			`{"family":"xg22","inputs":{"base_frequency_hz":868e6,"bitrate":1e5,"modulation_type":"FSK2","deviation":5e4}}`, 422},
		{"viterbi on xg1", http.MethodPost, "/api/calculator/run", `{"family":"xg1","profile":"viterbi"}`, 422},
		{"unknown run", http.MethodGet, "/api/calculator/runs/nope", "", 404},
		{"unknown export", http.MethodGet, "/api/calculator/export/nope", "", 404},
		{"unknown family profiles", http.MethodGet, "/api/calculator/families/xg99/profiles", "", 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env, _ := do(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, status, tt.status, env.Error)
			assert.Assert(t, !env.Success)
		})
	}
}

func TestCalculatorFamilies(t *testing.T) {
	calc, _ := NewCalculatorPlugin(0, 0)
	app := newTestApp(t, calc)

	_, env, _ := do(t, app, http.MethodGet, "/api/calculator/families", "")
	var fams []FamilyInfo
	assert.NilError(t, json.Unmarshal(env.Data, &fams))
	assert.Equal(t, len(fams), 3)
	assert.Equal(t, fams[2].Name, "xg22")
	assert.DeepEqual(t, fams[2].Profiles, []string{"base", "ook", "viterbi"})

	status, env, _ := do(t, app, http.MethodGet, "/api/calculator/families/xg1/profiles", "")
	assert.Equal(t, status, 200)
	assert.Assert(t, strings.Contains(string(env.Data), `"name":"ook"`))
}

func TestCalculatorTrace(t *testing.T) {
	calc, _ := NewCalculatorPlugin(0, 0)
	app := newTestApp(t, calc)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	go app.Listener(ln)
	defer app.Shutdown()

	conn, _, err := fws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/calculator/ws", nil)
	assert.NilError(t, err)
	defer conn.Close()

	type frame struct {
		Type   string          `json:"type"`
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
		Status int             `json:"status"`
	}

	assert.NilError(t, conn.WriteMessage(fws.TextMessage, []byte(runBody)))
	var m frame
	steps := 0
	for {
		m = frame{}
		assert.NilError(t, conn.ReadJSON(&m))
		if m.Type != "step" {
			break
		}
		steps++
	}
	assert.Equal(t, m.Type, "result", m.Error)
	assert.Assert(t, steps > 0)
	assert.Assert(t, strings.Contains(string(m.Result), `"family":"xg1"`))

	// The session survives a bad request.
	assert.NilError(t, conn.WriteMessage(fws.TextMessage, []byte("{")))
	m = frame{}
	assert.NilError(t, conn.ReadJSON(&m))
	assert.Equal(t, m.Type, "error")
	assert.Equal(t, m.Status, 400)

	assert.NilError(t, conn.WriteMessage(fws.TextMessage, []byte(`{"family":"xg1","profile":"viterbi"}`)))
	m = frame{}
	assert.NilError(t, conn.ReadJSON(&m))
	assert.Equal(t, m.Type, "error")
	assert.Equal(t, m.Status, 422)
}

func TestRegisters(t *testing.T) {
	regs, _ := NewRegistersPlugin()
	app := newTestApp(t, regs)

	status, env, _ := do(t, app, http.MethodGet, "/api/registers/xg1/MODEM_CF", "")
	assert.Equal(t, status, 200)
	var reg RegisterInfo
	assert.NilError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, reg.Address, "0x4008605C")

	status, env, _ = do(t, app, http.MethodGet, "/api/registers/xg1/modem_cf_dec0", "")
	assert.Equal(t, status, 200)
	var field FieldInfo
	assert.NilError(t, json.Unmarshal(env.Data, &field))
	assert.Equal(t, field.Register, "MODEM_CF")
	assert.Equal(t, field.Max, int64(7))

	status, env, _ = do(t, app, http.MethodPost, "/api/registers/xg1/MODEM_CF/decode", `{"value":"0x1a"}`)
	assert.Equal(t, status, 200, env.Error)
	assert.Assert(t, strings.Contains(string(env.Data), `"name":"MODEM_CF_DEC0","value":2`), string(env.Data))
	assert.Assert(t, strings.Contains(string(env.Data), `"name":"MODEM_CF_DEC1","value":3`), string(env.Data))

	status, _, _ = do(t, app, http.MethodGet, "/api/registers/xg1/MODEM_NOPE", "")
	assert.Equal(t, status, 404)
	status, _, _ = do(t, app, http.MethodPost, "/api/registers/xg1/MODEM_CF/decode", `{"value":-1}`)
	assert.Equal(t, status, 400)
}

func TestSequencerCompile(t *testing.T) {
	seq, _ := NewSequencerPlugin()
	app := newTestApp(t, seq)

	src := "- SET: {REG: MODEM_CF, MASK: 0x7}\n- END\n"
	status, env, _ := do(t, app, http.MethodPost, "/api/sequencer/compile?family=xg1", src)
	assert.Equal(t, status, 200, env.Error)
	var out CompiledProgram
	assert.NilError(t, json.Unmarshal(env.Data, &out))
	assert.DeepEqual(t, out.Bases, []string{"0x40080000"})
	assert.DeepEqual(t, out.Words, []string{"0x2000605C", "0x00000007", "0xF0000000"})

	status, _, _ = do(t, app, http.MethodPost, "/api/sequencer/compile", src)
	assert.Equal(t, status, 400)
}

func TestLibrary(t *testing.T) {
	dir := t.TempDir()
	lib, err := NewLibraryPlugin(dir)
	assert.NilError(t, err)
	app := newTestApp(t, lib)

	// A hand-written document keeps its key order through a save.
	doc := "family: xg1\ninputs:\n  modulation_type: FSK2\n  bitrate: 100000\nprofile: base\n"
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "fsk.yaml"), []byte(doc), 0644))

	status, env, _ := do(t, app, http.MethodGet, "/api/library/fsk", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, string(env.Data), `{"family":"xg1","inputs":{"modulation_type":"FSK2","bitrate":100000},"profile":"base"}`)

	body := `{"profile":"ook","family":"xg1","inputs":{"bitrate":4800,"modulation_type":"FSK2","deviation":2400}}`
	status, env, _ = do(t, app, http.MethodPut, "/api/library/fsk", body)
	assert.Equal(t, status, 200, env.Error)
	saved, err := os.ReadFile(filepath.Join(dir, "fsk.yaml"))
	assert.NilError(t, err)
	assert.Equal(t, string(saved),
		"family: xg1\ninputs:\n  modulation_type: FSK2\n  bitrate: 4800\n  deviation: 2400\nprofile: ook\n")

	_, env, _ = do(t, app, http.MethodGet, "/api/library/", "")
	var entries []LibraryEntry
	assert.NilError(t, json.Unmarshal(env.Data, &entries))
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Name, "fsk")

	status, _, _ = do(t, app, http.MethodPut, "/api/library/bad", `{"family":"xg99"}`)
	assert.Equal(t, status, 400)
	status, _, _ = do(t, app, http.MethodGet, "/api/library/..secret", "")
	assert.Equal(t, status, 400)

	status, _, _ = do(t, app, http.MethodDelete, "/api/library/fsk", "")
	assert.Equal(t, status, 200)
	status, _, _ = do(t, app, http.MethodGet, "/api/library/fsk", "")
	assert.Equal(t, status, 404)
}

func TestRegistry(t *testing.T) {
	assert.DeepEqual(t, Names(), []string{"calculator", "library", "registers", "sequencer"})
	factory, ok := Get("calculator")
	assert.Assert(t, ok)
	p, err := factory(map[string]interface{}{"history_size": 3})
	assert.NilError(t, err)
	assert.Equal(t, p.(*CalculatorPlugin).historySize, 3)
}
