package classifier

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

// cache is the subset of redisclient.Client a CameraTableMapper needs.
type cache interface {
	TableMapping(ctx context.Context, cameraID domain.ID) (map[string]domain.ID, bool)
	CacheTableMapping(ctx context.Context, cameraID domain.ID, mapping map[string]domain.ID) error
}

// CameraTableMapper resolves json_table_id -> Table.ID through a redis
// cache of each camera's installed crop-JSON mapping, falling back to the
// store's authoritative Camera.CropJSON on a cache miss (§5, §6).
type CameraTableMapper struct {
	store  *store.Store
	cache  cache
	logger zerolog.Logger
}

// NewCameraTableMapper builds a CameraTableMapper.
func NewCameraTableMapper(st *store.Store, c cache, logger zerolog.Logger) *CameraTableMapper {
	return &CameraTableMapper{store: st, cache: c, logger: logger.With().Str("component", component).Logger()}
}

// TableID implements classifier.TableMapper.
func (m *CameraTableMapper) TableID(ctx context.Context, cameraID domain.ID, jsonTableID string) (domain.ID, bool) {
	if mapping, ok := m.cache.TableMapping(ctx, cameraID); ok {
		id, ok := mapping[jsonTableID]
		return id, ok && !id.IsNil()
	}

	cam, err := m.store.GetCamera(ctx, cameraID)
	if err != nil || cam.CropJSON == nil {
		return domain.NilID, false
	}

	mapping := make(map[string]domain.ID, len(cam.CropJSON.Tables))
	for _, t := range cam.CropJSON.Tables {
		mapping[t.JSONTableID] = t.TableID
	}
	if err := m.cache.CacheTableMapping(ctx, cameraID, mapping); err != nil {
		m.logger.Warn().Err(err).Str("camera_id", cameraID.String()).Msg("failed to warm table-mapping cache")
	}

	id, ok := mapping[jsonTableID]
	return id, ok && !id.IsNil()
}
