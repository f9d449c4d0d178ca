package peer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/dcc/pkg/config"
	"github.com/cuemby/dcc/pkg/storage"
	"github.com/cuemby/dcc/pkg/types"
)

// syncConfig reconciles a freshly loaded ProjectSet against the store: a
// project named in the config but not yet in the store is created with a
// new ID; one already in the store has its static, config-derived fields
// (task lists, bucket names/groups, runtime versions, hooks) replaced from
// the new config while its mutable scheduling state - CurrentCommit,
// PendingCommit, NextBuildNumber, LastSystemError, and its ID - is left
// untouched, since those belong to the running system, not to the config
// file.
func syncConfig(store storage.Store, set *config.ProjectSet) error {
	existing, err := store.ListProjects()
	if err != nil {
		return fmt.Errorf("failed to list existing projects: %w", err)
	}
	byName := make(map[string]*types.Project, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	for _, name := range set.Names() {
		incoming, _ := set.Get(name)

		current, ok := byName[name]
		if !ok {
			incoming.ID = uuid.NewString()
			if err := store.CreateProject(incoming); err != nil {
				return fmt.Errorf("failed to create project %q: %w", name, err)
			}
			continue
		}

		current.SourceURL = incoming.SourceURL
		current.BucketNames = incoming.BucketNames
		current.TaskLists = incoming.TaskLists
		current.BeforeAllCode = incoming.BeforeAllCode
		current.BeforeEachGroupCode = incoming.BeforeEachGroupCode
		current.BucketGroups = incoming.BucketGroups
		current.RuntimeVersions = incoming.RuntimeVersions
		if err := store.UpdateProject(current); err != nil {
			return fmt.Errorf("failed to update project %q: %w", name, err)
		}
	}
	return nil
}
