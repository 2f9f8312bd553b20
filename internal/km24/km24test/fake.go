// Package km24test provides an in-memory KM24 gateway for tests.
package km24test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"km24vejviser/internal/km24"
)

// Fake answers gateway calls from a map of endpoint path to JSON body.
// Endpoints that are not registered fail with km24.ErrNotFound.
type Fake struct {
	mu      sync.Mutex
	bodies  map[string]string
	failing map[string]error
	calls   map[string]int
}

func New() *Fake {
	return &Fake{bodies: map[string]string{}, failing: map[string]error{}, calls: map[string]int{}}
}

// Set registers a JSON body for endpoint.
func (f *Fake) Set(endpoint, body string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[endpoint] = body
	delete(f.failing, endpoint)
	return f
}

// Fail makes endpoint fail with err.
func (f *Fake) Fail(endpoint string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[endpoint] = err
	return f
}

func (f *Fake) Calls(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func (f *Fake) Get(_ context.Context, endpoint string, _ bool) km24.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	if err, ok := f.failing[endpoint]; ok {
		return km24.Response{Error: err.Error(), Err: err}
	}
	body, ok := f.bodies[endpoint]
	if !ok {
		err := fmt.Errorf("%w: %s", km24.ErrNotFound, endpoint)
		return km24.Response{Error: err.Error(), Err: err}
	}
	return km24.Response{Success: true, Data: json.RawMessage(body)}
}

func (f *Fake) ModulesBasic(ctx context.Context, force bool) km24.Response {
	return f.Get(ctx, "/modules/basic", force)
}

func (f *Fake) ModuleDetails(ctx context.Context, id int, force bool) km24.Response {
	return f.Get(ctx, fmt.Sprintf("/modules/basic/%d", id), force)
}

func (f *Fake) Municipalities(ctx context.Context, force bool) km24.Response {
	return f.Get(ctx, "/municipalities", force)
}

func (f *Fake) BranchCodes(ctx context.Context, force bool) km24.Response {
	return f.Get(ctx, "/branch-codes/detailed", force)
}

func (f *Fake) Regions(ctx context.Context, force bool) km24.Response {
	return f.Get(ctx, "/regions", force)
}

func (f *Fake) CourtDistricts(ctx context.Context, force bool) km24.Response {
	return f.Get(ctx, "/court-districts", force)
}

func (f *Fake) GenericValues(ctx context.Context, partID int, force bool) km24.Response {
	return f.Get(ctx, fmt.Sprintf("/generic-values/%d", partID), force)
}

func (f *Fake) WebSources(ctx context.Context, moduleID int, force bool) km24.Response {
	return f.Get(ctx, fmt.Sprintf("/web-sources/categories/%d", moduleID), force)
}

// Modules is a small module list shaped like modules/basic, covering the
// modules most tests talk about.
const Modules = `{"items":[
 {"id":110,"title":"Arbejdstilsyn","slug":"arbejdstilsyn","description":"Kritik fra Arbejdstilsynet, opdateres dagligt",
  "longDescription":"Arbejdstilsynets reaktioner: forbud, strakspåbud og påbud. Problemer som asbest.",
  "parts":[{"id":2,"part":"municipality","name":"Kommune","order":1},
           {"id":204,"part":"generic_value","name":"Reaktion","order":3},
           {"id":205,"part":"generic_value","name":"Problem","order":2},
           {"id":206,"part":"company","name":"Virksomhed","order":4}]},
 {"id":120,"title":"Tinglysning","slug":"tinglysning","description":"Ejendomshandler",
  "longDescription":"Samlehandler over beløbsgrænsen, erhvervsejendomme og landbrugsejendomme.",
  "parts":[{"id":2,"part":"municipality","name":"Kommune"},
           {"id":301,"part":"generic_value","name":"Ejendomstype"},
           {"id":302,"part":"amount_selection","name":"Beløb"}]},
 {"id":130,"title":"Danske medier","slug":"danske-medier","description":"Artikler fra danske medier",
  "longDescription":"Dækker landsdækkende medier og lokale medier.",
  "parts":[{"id":401,"part":"web_source","name":"Medie"},{"id":402,"part":"search_string","name":"Søgeord"}]},
 {"id":140,"title":"Lokalpolitik","slug":"lokalpolitik","description":"Dagsordener og referater",
  "parts":[{"id":501,"part":"web_source","name":"Kommune"},{"id":502,"part":"search_string","name":"Søgeord"}]},
 {"id":150,"title":"Registrering","slug":"registrering","description":"Nye virksomheder i CVR",
  "parts":[{"id":601,"part":"industry","name":"Branche"},{"id":2,"part":"municipality","name":"Kommune"}]},
 {"id":160,"title":"Status","slug":"status","description":"Statusændringer for virksomheder",
  "parts":[{"id":701,"part":"generic_value","name":"Statustype"},{"id":601,"part":"industry","name":"Branche"}]},
 {"id":170,"title":"Udbud","slug":"udbud","description":"Offentlige udbud",
  "parts":[{"id":801,"part":"search_string","name":"Søgeord"}]}
]}`

// WithModules returns a Fake preloaded with Modules and the matching
// module details, generic values and web sources.
func WithModules() *Fake {
	f := New().Set("/modules/basic", Modules)
	var env struct {
		Items []json.RawMessage `json:"items"`
	}
	_ = json.Unmarshal([]byte(Modules), &env)
	for _, raw := range env.Items {
		var m struct {
			ID int `json:"id"`
		}
		_ = json.Unmarshal(raw, &m)
		f.Set(fmt.Sprintf("/modules/basic/%d", m.ID), string(raw))
	}
	f.Set("/generic-values/204", `{"items":[{"id":1,"name":"Forbud","description":"Forbud mod arbejde"},{"id":2,"name":"Strakspåbud"},{"id":3,"name":"Vejledning"}]}`)
	f.Set("/generic-values/205", `{"items":[{"id":10,"name":"Asbest","description":"Asbest i bygninger"},{"id":11,"name":"Støj"},{"id":12,"name":"Ulykke","description":"Arbejdsulykke og sikkerhed"}]}`)
	f.Set("/generic-values/301", `{"items":[{"id":20,"name":"Erhvervsejendom"},{"id":21,"name":"Landbrugsejendom"},{"id":22,"name":"Ejerlejlighed"}]}`)
	f.Set("/generic-values/701", `{"items":[{"id":30,"name":"Konkurs"},{"id":31,"name":"Ophørt"}]}`)
	f.Set("/web-sources/categories/130", `{"items":[{"id":1,"name":"DR"},{"id":2,"name":"TV2"},{"id":3,"name":"JydskeVestkysten"}]}`)
	f.Set("/web-sources/categories/140", `{"items":[{"id":9,"name":"Aarhus Kommune"}]}`)
	return f
}
