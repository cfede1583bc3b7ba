package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/domain"
	"github.com/quarryproj/quarry/internal/rmi"
	"github.com/quarryproj/quarry/internal/task"
)

// Registry method names for the repository task bodies.
const (
	MethodSyncRepository  = "repository.sync"
	MethodCloneRepository = "repository.clone"
	MethodNotifyAgent     = "agent.notify"
)

// RegisterTasks installs the service's task bodies in the registry.
// Restored snapshots resolve their callables through these same names,
// so the set registered here must be stable across restarts.
func RegisterTasks(reg *task.Registry, svc *RepositoryService) {
	reg.Register(MethodSyncRepository, svc.runSync)
	reg.Register(MethodCloneRepository, svc.runClone)
	reg.Register(MethodNotifyAgent, svc.runNotify)
}

// runSync is the body of a repository.sync task. It fetches the feed
// through the Syncer and records the resulting package count.
func (s *RepositoryService) runSync(ctx context.Context, t *task.Task) (any, error) {
	repoID, err := argUUID(t.Args(), 0)
	if err != nil {
		return nil, err
	}

	repo, err := s.GetRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}

	t.SetProgress("step", "fetching feed")
	count, err := s.syncer.Sync(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("sync of repository %s failed: %w", repo.Name, err)
	}

	t.SetProgress("step", "recording results")
	repo.RecordSync(count, time.Now())
	if err := s.store.Update(ctx, repo); err != nil {
		return nil, fmt.Errorf("failed to record sync for repository %s: %w", repo.Name, err)
	}

	return map[string]any{
		"repository_id": repo.ID.String(),
		"package_count": count,
	}, nil
}

// runClone is the body of a repository.clone task. The clone copies the
// source's feed and package bookkeeping but carries no sync schedule.
func (s *RepositoryService) runClone(ctx context.Context, t *task.Task) (any, error) {
	args := t.Args()
	srcID, err := argUUID(args, 0)
	if err != nil {
		return nil, err
	}
	cloneName, err := argString(args, 1)
	if err != nil {
		return nil, err
	}

	src, err := s.GetRepository(ctx, srcID)
	if err != nil {
		return nil, err
	}

	clone, err := domain.NewRepository(cloneName, src.FeedURL, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRepository, err)
	}
	clone.PackageCount = src.PackageCount

	if err := s.store.Create(ctx, clone); err != nil {
		return nil, fmt.Errorf("failed to create clone of repository %s: %w", src.Name, err)
	}

	return map[string]any{
		"repository_id": clone.ID.String(),
		"cloned_from":   src.ID.String(),
	}, nil
}

// runNotify is the body of an agent.notify task. It only dispatches the
// remote invocation; the task stays running until the bridge delivers
// the agent's reply or the watchdog expires.
func (s *RepositoryService) runNotify(ctx context.Context, t *task.Task) (any, error) {
	if s.invoker == nil {
		return nil, fmt.Errorf("no message bus configured for agent notification")
	}

	args := t.Args()
	agentID, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	class, err := argString(args, 1)
	if err != nil {
		return nil, err
	}
	method, err := argString(args, 2)
	if err != nil {
		return nil, err
	}

	_, err = s.invoker.Call(ctx, rmi.CallSpec{
		AgentID: agentID,
		Class:   class,
		Method:  method,
		Args:    args[3:],
		TaskID:  t.ID(),
		Timeout: t.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s.%s on agent %s: %w", class, method, agentID, err)
	}
	return nil, nil
}

func argString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing task argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("task argument %d is %T, want string", i, args[i])
	}
	return s, nil
}

func argUUID(args []any, i int) (uuid.UUID, error) {
	s, err := argString(args, i)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("task argument %d is not a valid id: %w", i, err)
	}
	return id, nil
}
