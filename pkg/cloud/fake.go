package cloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/deskhive/deskhive/pkg/types"
)

// FakeCompute is an in-memory Compute used in single-node development
// mode and tests. Instance state transitions are immediate.
type FakeCompute struct {
	mu        sync.Mutex
	instances map[string]InstanceState
	tags      map[string]map[string]string
	images    map[string]*Image
}

// NewFakeCompute creates an empty fake provider.
func NewFakeCompute() *FakeCompute {
	return &FakeCompute{
		instances: make(map[string]InstanceState),
		tags:      make(map[string]map[string]string),
		images:    make(map[string]*Image),
	}
}

// AddInstance registers an instance in the given state.
func (f *FakeCompute) AddInstance(instanceID string, state InstanceState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances[instanceID] = state
}

// AddImage registers a machine image.
func (f *FakeCompute) AddImage(image *Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[image.ImageID] = image
}

// InstanceState returns the current state of an instance.
func (f *FakeCompute) InstanceState(instanceID string) (InstanceState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.instances[instanceID]
	return state, ok
}

// Tags returns the tags attached to an instance.
func (f *FakeCompute) Tags(instanceID string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags[instanceID]
}

func (f *FakeCompute) setAll(instanceIDs []string, state InstanceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range instanceIDs {
		if _, ok := f.instances[id]; !ok {
			return fmt.Errorf("instance not found: %s", id)
		}
	}
	for _, id := range instanceIDs {
		f.instances[id] = state
	}
	return nil
}

func (f *FakeCompute) StartInstances(ctx context.Context, instanceIDs []string) error {
	return f.setAll(instanceIDs, InstanceRunning)
}

func (f *FakeCompute) StopInstances(ctx context.Context, instanceIDs []string) error {
	return f.setAll(instanceIDs, InstanceStopped)
}

func (f *FakeCompute) HibernateInstances(ctx context.Context, instanceIDs []string) error {
	return f.setAll(instanceIDs, InstanceStopped)
}

func (f *FakeCompute) TerminateInstances(ctx context.Context, instanceIDs []string) error {
	return f.setAll(instanceIDs, InstanceTerminated)
}

func (f *FakeCompute) CreateTags(ctx context.Context, instanceID string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.instances[instanceID]; !ok {
		return fmt.Errorf("instance not found: %s", instanceID)
	}
	if f.tags[instanceID] == nil {
		f.tags[instanceID] = make(map[string]string)
	}
	for k, v := range tags {
		f.tags[instanceID][k] = v
	}
	return nil
}

func (f *FakeCompute) DescribeImage(ctx context.Context, imageID string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	image, ok := f.images[imageID]
	if !ok {
		return nil, fmt.Errorf("image not found: %s", imageID)
	}
	return image, nil
}

// FakeCommands is an in-memory Commands implementation. Sent commands
// complete successfully with a canned output unless a result was staged
// via SetResult.
type FakeCommands struct {
	mu      sync.Mutex
	results map[string]*CommandOutput
	sent    []SentCommand
}

// SentCommand records one SendCommand call.
type SentCommand struct {
	CommandID   string
	InstanceID  string
	CommandType types.CommandType
	Payload     map[string]string
}

// NewFakeCommands creates an empty fake runner.
func NewFakeCommands() *FakeCommands {
	return &FakeCommands{results: make(map[string]*CommandOutput)}
}

// SetResult stages the output returned for a command id.
func (f *FakeCommands) SetResult(commandID string, out *CommandOutput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[commandID] = out
}

// Sent returns all commands sent so far.
func (f *FakeCommands) Sent() []SentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentCommand(nil), f.sent...)
}

func (f *FakeCommands) SendCommand(ctx context.Context, instanceID string, commandType types.CommandType, payload map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	commandID := uuid.New().String()
	f.sent = append(f.sent, SentCommand{
		CommandID:   commandID,
		InstanceID:  instanceID,
		CommandType: commandType,
		Payload:     payload,
	})
	return commandID, nil
}

func (f *FakeCommands) GetCommandOutput(ctx context.Context, commandID, instanceID string) (*CommandOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if out, ok := f.results[commandID]; ok {
		return out, nil
	}
	return &CommandOutput{CommandID: commandID, Status: CommandSuccess}, nil
}
