package tests

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dar_platform/dar_backend/provisioning"
)

type dispatchRecord struct {
	Definition  provisioning.RequestDefinition
	WorkspaceId uuid.UUID
}

// ProvisionerStub stands in for the external pipeline, recording dispatches
// and handing back deterministic monitoring links.
type ProvisionerStub struct {
	mu         sync.Mutex
	dispatches []dispatchRecord
	fail       bool
}

func newProvisionerStub() *ProvisionerStub {
	return &ProvisionerStub{}
}

func (p *ProvisionerStub) Dispatch(definition provisioning.RequestDefinition, workspaceId uuid.UUID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail {
		return "", fmt.Errorf("%w: pipeline rejected the run", provisioning.ErrDispatchFailed)
	}

	p.dispatches = append(p.dispatches, dispatchRecord{Definition: definition, WorkspaceId: workspaceId})
	return fmt.Sprintf("https://adf.example.com/monitoring/run-%d", len(p.dispatches)), nil
}

func (p *ProvisionerStub) Dispatches() []dispatchRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dispatchRecord{}, p.dispatches...)
}

func (p *ProvisionerStub) FailNextDispatches(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}
