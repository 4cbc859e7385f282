package hcloud

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/util/retry"
)

// actionsOperation encodes actions as one fleet operation. Nil actions are
// skipped; no actions at all yields an already-completed operation.
func actionsOperation(kind string, actions ...*hcloud.Action) fleet.Operation {
	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		if a != nil {
			ids = append(ids, strconv.FormatInt(a.ID, 10))
		}
	}
	return fleet.Operation{ID: strings.Join(ids, ","), Kind: kind}
}

// parseActionIDs decodes an operation ID produced by actionsOperation.
func parseActionIDs(id string) ([]int64, error) {
	if id == "" {
		return nil, nil
	}
	parts := strings.Split(id, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed operation id %q: %w", id, err)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// PollOperation observes every action of op once. The operation is done
// when all actions succeeded or any of them failed.
func (c *Client) PollOperation(ctx context.Context, _, _ string, op fleet.Operation) (fleet.OperationStatus, error) {
	ids, err := parseActionIDs(op.ID)
	if err != nil {
		return fleet.OperationStatus{Done: true, Error: err.Error()}, nil
	}

	done := true
	for _, id := range ids {
		action, _, err := c.client.Action.GetByID(ctx, id)
		if err != nil {
			return fleet.OperationStatus{}, fmt.Errorf("failed to get action %d: %w", id, err)
		}
		if action == nil {
			return fleet.OperationStatus{}, fmt.Errorf("action %d not found", id)
		}
		switch action.Status {
		case hcloud.ActionStatusError:
			return fleet.OperationStatus{
				Done:  true,
				Error: fmt.Sprintf("%s: %s (%s)", action.Command, action.ErrorMessage, action.ErrorCode),
			}, nil
		case hcloud.ActionStatusSuccess:
		default:
			done = false
		}
	}
	return fleet.OperationStatus{Done: done}, nil
}

// CreateResult wraps the result of a resource creation.
// It handles both single and multiple actions that may need to be awaited.
type CreateResult[T any] struct {
	Resource T
	Action   *hcloud.Action
	Actions  []*hcloud.Action
}

// DeleteOperation deletes a named hcloud resource. It succeeds when the
// resource does not exist and retries while the resource is locked.
//
//	return (&DeleteOperation[*hcloud.Firewall]{
//	    Name:         name,
//	    ResourceType: "firewall",
//	    Get:          c.client.Firewall.Get,
//	    Delete:       c.client.Firewall.Delete,
//	}).Execute(ctx, c)
type DeleteOperation[T any] struct {
	Name         string
	ResourceType string

	Get    func(ctx context.Context, name string) (T, *hcloud.Response, error)
	Delete func(ctx context.Context, resource T) (*hcloud.Response, error)
}

// Execute performs the deletion.
func (op *DeleteOperation[T]) Execute(ctx context.Context, client *Client) error {
	ctx, cancel := context.WithTimeout(ctx, client.timeouts.Node)
	defer cancel()

	return retry.WithExponentialBackoff(ctx, func() error {
		resource, _, err := op.Get(ctx, op.Name)
		if err != nil {
			return retry.Fatal(fmt.Errorf("failed to get %s: %w", op.ResourceType, err))
		}
		if reflect.ValueOf(resource).IsNil() {
			return nil
		}

		_, err = op.Delete(ctx, resource)
		switch {
		case err == nil, IsNotFound(err):
			return nil
		case isResourceLocked(err):
			return err
		default:
			return retry.Fatal(fmt.Errorf("failed to delete %s %s: %w", op.ResourceType, op.Name, err))
		}
	},
		retry.WithMaxRetries(client.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(client.timeouts.RetryInitialDelay))
}

// EnsureOperation is get-or-create for a named hcloud resource, with
// optional validation and update of an existing one.
type EnsureOperation[T any, CreateOpts any, UpdateOpts any] struct {
	Name         string
	ResourceType string

	Get    func(ctx context.Context, name string) (T, *hcloud.Response, error)
	Create func(ctx context.Context, opts CreateOpts) (*CreateResult[T], *hcloud.Response, error)

	// Update and UpdateOptsMapper are optional and used together.
	Update           func(ctx context.Context, resource T, opts UpdateOpts) ([]*hcloud.Action, *hcloud.Response, error)
	UpdateOptsMapper func(resource T) UpdateOpts

	// Validate rejects an existing resource that does not match (optional).
	Validate func(resource T) error

	CreateOptsMapper func() CreateOpts
}

// Execute returns the existing or newly created resource.
func (op *EnsureOperation[T, CreateOpts, UpdateOpts]) Execute(ctx context.Context, client *Client) (T, error) {
	var zero T

	resource, _, err := op.Get(ctx, op.Name)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s: %w", op.ResourceType, err)
	}

	if !reflect.ValueOf(resource).IsNil() {
		if op.Validate != nil {
			if err := op.Validate(resource); err != nil {
				return zero, err
			}
		}
		if op.Update != nil && op.UpdateOptsMapper != nil {
			actions, _, err := op.Update(ctx, resource, op.UpdateOptsMapper(resource))
			if err != nil {
				return zero, fmt.Errorf("failed to update %s: %w", op.ResourceType, err)
			}
			if err := waitForActions(ctx, client.client, actions...); err != nil {
				return zero, fmt.Errorf("failed to wait for %s update: %w", op.ResourceType, err)
			}
		}
		return resource, nil
	}

	result, _, err := op.Create(ctx, op.CreateOptsMapper())
	if err != nil {
		return zero, fmt.Errorf("failed to create %s: %w", op.ResourceType, err)
	}
	actions := result.Actions
	if result.Action != nil {
		actions = append([]*hcloud.Action{result.Action}, actions...)
	}
	if err := waitForActions(ctx, client.client, actions...); err != nil {
		return zero, fmt.Errorf("failed to wait for %s creation: %w", op.ResourceType, err)
	}
	return result.Resource, nil
}

func waitForActions(ctx context.Context, client *hcloud.Client, actions ...*hcloud.Action) error {
	if len(actions) == 0 {
		return nil
	}
	return client.Action.WaitFor(ctx, actions...)
}

// simpleCreate wraps create functions returning the resource directly.
func simpleCreate[T any, Opts any](
	createFn func(context.Context, Opts) (T, *hcloud.Response, error),
) func(context.Context, Opts) (*CreateResult[T], *hcloud.Response, error) {
	return func(ctx context.Context, opts Opts) (*CreateResult[T], *hcloud.Response, error) {
		resource, resp, err := createFn(ctx, opts)
		if err != nil {
			return nil, resp, err
		}
		return &CreateResult[T]{Resource: resource}, resp, nil
	}
}
