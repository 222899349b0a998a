package cloud

import (
	"context"

	"github.com/deskhive/deskhive/pkg/types"
)

// InstanceState values reported by the compute provider.
type InstanceState string

const (
	InstancePending      InstanceState = "pending"
	InstanceRunning      InstanceState = "running"
	InstanceStopping     InstanceState = "stopping"
	InstanceStopped      InstanceState = "stopped"
	InstanceShuttingDown InstanceState = "shutting-down"
	InstanceTerminated   InstanceState = "terminated"
)

// Image describes a machine image backing a software stack.
type Image struct {
	ImageID      string
	Name         string
	State        string
	Architecture string
}

// Compute controls desktop host instances.
type Compute interface {
	// StartInstances starts stopped instances.
	StartInstances(ctx context.Context, instanceIDs []string) error

	// StopInstances stops running instances.
	StopInstances(ctx context.Context, instanceIDs []string) error

	// HibernateInstances stops instances preserving their memory image.
	HibernateInstances(ctx context.Context, instanceIDs []string) error

	// TerminateInstances destroys instances permanently.
	TerminateInstances(ctx context.Context, instanceIDs []string) error

	// CreateTags attaches key/value tags to an instance.
	CreateTags(ctx context.Context, instanceID string, tags map[string]string) error

	// DescribeImage returns metadata for a machine image.
	DescribeImage(ctx context.Context, imageID string) (*Image, error)
}

// CommandStatus of a remote command execution.
type CommandStatus string

const (
	CommandInProgress CommandStatus = "InProgress"
	CommandSuccess    CommandStatus = "Success"
	CommandFailed     CommandStatus = "Failed"
)

// CommandOutput is the result of one remote command invocation.
type CommandOutput struct {
	CommandID string
	Status    CommandStatus
	Output    string
}

// Commands runs scripts on desktop hosts through the provider's remote
// execution channel.
type Commands interface {
	// SendCommand starts a command of the given type on an instance and
	// returns the provider-assigned command id.
	SendCommand(ctx context.Context, instanceID string, commandType types.CommandType, payload map[string]string) (string, error)

	// GetCommandOutput fetches the current status and output of a
	// previously sent command.
	GetCommandOutput(ctx context.Context, commandID, instanceID string) (*CommandOutput, error)
}
