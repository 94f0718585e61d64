package route

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const rootCachePath = "root"

// Syncer implements the hash-based cache-sync protocol against the
// external project system. Sync cost scales with the delta: an unchanged
// root hash means zero fetches.
type Syncer struct {
	repo     repository.Repository
	projects adapter.ProjectSystem
	store    adapter.Storage
	clock    adapter.Clock
}

// NewSyncer creates a new cache syncer
func NewSyncer(repo repository.Repository, projects adapter.ProjectSystem, store adapter.Storage, clock adapter.Clock) *Syncer {
	if clock == nil {
		clock = adapter.RealClock{}
	}
	return &Syncer{
		repo:     repo,
		projects: projects,
		store:    store,
		clock:    clock,
	}
}

// Sync walks the external hash tree, fetching and re-hashing only changed
// subtrees down to individual records.
func (s *Syncer) Sync(ctx context.Context) (*model.SyncReport, error) {
	if s.projects == nil {
		return nil, goerr.Wrap(adapter.ErrExternalUnavailable, "project system not configured")
	}

	tree, err := s.projects.HashStatus(ctx, "")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch hash status")
	}

	report := &model.SyncReport{}

	// Cheap root comparison first: equal means the whole dataset is
	// unchanged and nothing is fetched.
	if cached, err := s.repo.GetHashCache(ctx, rootCachePath); err == nil && cached.Hash == tree.Root {
		return report, nil
	}
	report.RootChanged = true

	logger := logging.From(ctx)
	fetchFailed := false
	for _, section := range model.HashSections {
		node, ok := tree.Sections[section]
		if !ok {
			continue
		}
		if cached, err := s.repo.GetHashCache(ctx, section); err == nil && cached.Hash == node.Hash {
			continue
		}
		report.ChangedSections = append(report.ChangedSections, section)

		sectionFailed := false
		for id, hash := range node.Children {
			path := section + "/" + id
			if cached, err := s.repo.GetHashCache(ctx, path); err == nil && cached.Hash == hash {
				continue
			}
			report.ChangedRecords = append(report.ChangedRecords, path)

			// Only the data section is fetchable through the project
			// interface; other sections carry the advertised hash
			// forward so future comparisons stay cheap.
			if section == "data" {
				fetched, err := s.fetchRecord(ctx, id, path)
				if err != nil {
					logger.Warn("failed to fetch changed record", "error", err, "path", path)
					sectionFailed = true
					continue
				}
				report.Fetches++
				if fetched != hash {
					logger.Debug("content hash differs from advertised hash", "path", path)
				}
			}

			// The advertised hash is the comparison key for future syncs.
			if err := s.writeHash(ctx, path, hash); err != nil {
				logger.Warn("failed to write hash cache", "error", err, "path", path)
			}
		}

		// A failed record keeps the section hash stale so the next sync
		// walks this section again and retries the missing fetch.
		if sectionFailed {
			fetchFailed = true
			continue
		}
		if err := s.writeHash(ctx, section, node.Hash); err != nil {
			logger.Warn("failed to write section hash", "error", err, "section", section)
		}
	}

	if !fetchFailed {
		if err := s.writeHash(ctx, rootCachePath, tree.Root); err != nil {
			logger.Warn("failed to write root hash", "error", err)
		}
	}

	return report, nil
}

// fetchRecord refetches a changed record, archives its payload and
// returns the recomputed content hash.
func (s *Syncer) fetchRecord(ctx context.Context, id, path string) (string, error) {
	detail, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(detail)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode record payload", goerr.V("id", id))
	}

	if s.store != nil {
		if err := s.archive(ctx, path, payload); err != nil {
			logging.From(ctx).Warn("failed to archive payload", "error", err, "path", path)
		}
	}

	return ContentHash(payload), nil
}

func (s *Syncer) archive(ctx context.Context, path string, payload []byte) error {
	w, err := s.store.Put(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		werr := w.Close()
		return errors.Join(err, werr)
	}
	return w.Close()
}

func (s *Syncer) writeHash(ctx context.Context, path, hash string) error {
	return s.repo.PutHashCache(ctx, &model.HashCacheEntry{
		Path:      path,
		Hash:      hash,
		FetchedAt: s.clock.Now(),
	})
}

// ContentHash computes the content hash of a payload.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
