// Package local implements the in-memory development provider. It synthesizes
// outputs for a handful of well-known resource types (registries, identities,
// web apps) so configurations can be planned and applied end to end without a
// remote control plane. Engine tests use it as the provider mock.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/groundwork-io/groundwork/internal/provider"
)

type record struct {
	typ     string
	name    string
	inputs  map[string]any
	outputs map[string]any
}

// Provider keeps every created object in memory, keyed by remote id.
type Provider struct {
	mu      sync.Mutex
	objects map[string]*record
}

func New() *Provider {
	return &Provider{objects: make(map[string]*record)}
}

func (p *Provider) Create(ctx context.Context, req *provider.CreateRequest) (*provider.CreateResponse, error) {
	id := fmt.Sprintf("local-%s-%s", req.Type, req.Name)
	outputs := synthesize(req.Type, req.Name, req.Attributes)
	outputs["id"] = id

	p.mu.Lock()
	p.objects[id] = &record{typ: req.Type, name: req.Name, inputs: req.Attributes, outputs: outputs}
	p.mu.Unlock()

	return &provider.CreateResponse{ID: id, Outputs: outputs}, nil
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if obj, ok := p.objects[req.ID]; ok {
		return &provider.ReadResponse{Exists: true, Outputs: obj.outputs}, nil
	}
	// objects created by an earlier process don't survive in memory; echo the
	// recorded outputs so refresh doesn't report every resource as gone
	if len(req.Outputs) > 0 {
		return &provider.ReadResponse{Exists: true, Outputs: req.Outputs}, nil
	}
	return &provider.ReadResponse{Exists: false}, nil
}

func (p *Provider) Update(ctx context.Context, req *provider.UpdateRequest) (*provider.UpdateResponse, error) {
	outputs := synthesize(req.Type, req.Name, req.Attributes)
	outputs["id"] = req.ID

	p.mu.Lock()
	p.objects[req.ID] = &record{typ: req.Type, name: req.Name, inputs: req.Attributes, outputs: outputs}
	p.mu.Unlock()

	return &provider.UpdateResponse{Outputs: outputs}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	p.mu.Lock()
	delete(p.objects, req.ID)
	p.mu.Unlock()
	return nil
}

// synthesize fabricates the outputs a real control plane would assign.
// Hostname-style outputs are deterministic functions of the name; identifiers
// that a cloud would mint (principal ids and the like) are random.
func synthesize(typ, name string, attrs map[string]any) map[string]any {
	outputs := make(map[string]any, len(attrs)+3)
	for k, v := range attrs {
		outputs[k] = v
	}

	switch typ {
	case "containerRegistry":
		outputs["loginServer"] = name + ".registry.local"
	case "managedIdentity":
		outputs["principalId"] = uuid.NewString()
		outputs["clientId"] = uuid.NewString()
	case "roleAssignment":
		outputs["assignmentId"] = uuid.NewString()
	case "webApp":
		hostname := name + ".apps.local"
		outputs["hostname"] = hostname
		outputs["url"] = "https://" + hostname
	}
	return outputs
}
