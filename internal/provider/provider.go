// Package provider defines the boundary to remote control-plane APIs: the
// four calls the engine makes per resource, and the registry of loaded
// implementations.
package provider

import "context"

// Interface is implemented by every provider. All calls are synchronous; a
// provider reports failure through the error return and must not leave a
// half-created remote object behind a nil error.
type Interface interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)
	Update(ctx context.Context, req *UpdateRequest) (*UpdateResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) error
}

type CreateRequest struct {
	Type       string
	Name       string
	Attributes map[string]any
}

type CreateResponse struct {
	ID      string // remote identifier, recorded in state
	Outputs map[string]any
}

type ReadRequest struct {
	Type    string
	ID      string
	Outputs map[string]any // last recorded outputs, for providers without live lookup
}

type ReadResponse struct {
	Exists  bool
	Outputs map[string]any
}

type UpdateRequest struct {
	Type         string
	Name         string
	ID           string
	Attributes   map[string]any
	PriorOutputs map[string]any
}

type UpdateResponse struct {
	Outputs map[string]any
}

type DeleteRequest struct {
	Type string
	ID   string
}
