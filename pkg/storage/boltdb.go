package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/dcc/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketProjects     = []byte("projects")
	bucketBuilds       = []byte("builds")
	bucketBuckets      = []byte("buckets")
	bucketLogFragments = []byte("log_fragments")
)

// BoltStore implements Store using an embedded BoltDB file. One file per
// peer's data directory; every peer in a group opens its own copy and the
// store is only ever consulted as the shared source of truth, never shared
// as an open handle across peers.
type BoltStore struct {
	db      *bolt.DB
	dataDir string
}

// NewBoltStore creates a new BoltDB-backed store rooted at dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	db, err := openBoltDB(dataDir)
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db, dataDir: dataDir}, nil
}

func openBoltDB(dataDir string) (*bolt.DB, error) {
	dbPath := filepath.Join(dataDir, "dcc.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProjects, bucketBuilds, bucketBuckets, bucketLogFragments} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Reopen closes the current database handle, if any, and opens a fresh one
// at the same data directory. Used by the failure envelope's reconnect
// retry: a handle that has gone stale (the underlying file lock lost, the
// file moved) is discarded and replaced rather than patched in place.
func (s *BoltStore) Reopen() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	db, err := openBoltDB(s.dataDir)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// --- Projects ---

func (s *BoltStore) CreateProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return b.Put([]byte(project.ID), data)
	})
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("project not found: %s", id)
		}
		return json.Unmarshal(data, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BoltStore) GetProjectByName(name string) (*types.Project, error) {
	var found *types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			if project.Name == name {
				found = &project
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("project not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListProjects() ([]*types.Project, error) {
	var projects []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			projects = append(projects, &project)
			return nil
		})
	})
	return projects, err
}

func (s *BoltStore) UpdateProject(project *types.Project) error {
	return s.CreateProject(project)
}

func (s *BoltStore) DeleteProject(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).Delete([]byte(id))
	})
}

// --- Builds ---

func (s *BoltStore) CreateBuild(build *types.Build) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuilds)
		data, err := json.Marshal(build)
		if err != nil {
			return err
		}
		return b.Put([]byte(build.ID), data)
	})
}

func (s *BoltStore) GetBuild(id string) (*types.Build, error) {
	var build types.Build
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuilds)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("build not found: %s", id)
		}
		return json.Unmarshal(data, &build)
	})
	if err != nil {
		return nil, err
	}
	return &build, nil
}

func (s *BoltStore) ListBuildsByProject(projectID string) ([]*types.Build, error) {
	var builds []*types.Build
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuilds)
		return b.ForEach(func(k, v []byte) error {
			var build types.Build
			if err := json.Unmarshal(v, &build); err != nil {
				return err
			}
			if build.ProjectID == projectID {
				builds = append(builds, &build)
			}
			return nil
		})
	})
	return builds, err
}

func (s *BoltStore) LastBuild(projectID string, before *types.Build) (*types.Build, error) {
	builds, err := s.ListBuildsByProject(projectID)
	if err != nil {
		return nil, err
	}
	var last *types.Build
	for _, build := range builds {
		if before != nil && build.BuildNumber >= before.BuildNumber {
			continue
		}
		if last == nil || build.BuildNumber > last.BuildNumber {
			last = build
		}
	}
	return last, nil
}

func (s *BoltStore) UpdateBuild(build *types.Build) error {
	return s.CreateBuild(build)
}

// --- Buckets ---

func (s *BoltStore) CreateBucket(bucket *types.Bucket) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuckets)
		data, err := json.Marshal(bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(bucket.ID), data)
	})
}

func (s *BoltStore) GetBucket(id string) (*types.Bucket, error) {
	var bucket types.Bucket
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuckets)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("bucket not found: %s", id)
		}
		return json.Unmarshal(data, &bucket)
	})
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

func (s *BoltStore) ListBucketsByBuild(buildID string) ([]*types.Bucket, error) {
	var buckets []*types.Bucket
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuckets)
		return b.ForEach(func(k, v []byte) error {
			var bucket types.Bucket
			if err := json.Unmarshal(v, &bucket); err != nil {
				return err
			}
			if bucket.BuildID == buildID {
				buckets = append(buckets, &bucket)
			}
			return nil
		})
	})
	return buckets, err
}

func (s *BoltStore) NonTerminalBucketsByProject(projectID string) ([]*types.Bucket, error) {
	var buckets []*types.Bucket
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuckets)
		return b.ForEach(func(k, v []byte) error {
			var bucket types.Bucket
			if err := json.Unmarshal(v, &bucket); err != nil {
				return err
			}
			if bucket.ProjectID == projectID && !bucket.Status.Terminal() {
				buckets = append(buckets, &bucket)
			}
			return nil
		})
	})
	return buckets, err
}

func (s *BoltStore) UpdateBucket(bucket *types.Bucket) error {
	return s.CreateBucket(bucket)
}

// --- Log fragments ---

func (s *BoltStore) AppendLogFragment(fragment *types.LogFragment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogFragments)
		data, err := json.Marshal(fragment)
		if err != nil {
			return err
		}
		return b.Put([]byte(fragment.ID), data)
	})
}

func (s *BoltStore) ListLogFragmentsByBucket(bucketID string) ([]*types.LogFragment, error) {
	var fragments []*types.LogFragment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogFragments)
		return b.ForEach(func(k, v []byte) error {
			var fragment types.LogFragment
			if err := json.Unmarshal(v, &fragment); err != nil {
				return err
			}
			if fragment.BucketID == bucketID {
				fragments = append(fragments, &fragment)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortFragmentsByCreatedAt(fragments)
	return fragments, nil
}

func sortFragmentsByCreatedAt(fragments []*types.LogFragment) {
	for i := 1; i < len(fragments); i++ {
		for j := i; j > 0 && fragments[j].CreatedAt.Before(fragments[j-1].CreatedAt); j-- {
			fragments[j], fragments[j-1] = fragments[j-1], fragments[j]
		}
	}
}
