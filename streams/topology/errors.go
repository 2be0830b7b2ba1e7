package topology

import "github.com/gmbyapa/kfactory/pkg/errors"

var (
	ErrTopologyFrozen  = errors.Sentinel(`topology is frozen`)
	ErrInvalidNode     = errors.Sentinel(`invalid node`)
	ErrDuplicateNode   = errors.Sentinel(`duplicate node`)
	ErrDuplicateTopic  = errors.Sentinel(`topic already has a source`)
	ErrUnknownParent   = errors.Sentinel(`unknown parent`)
	ErrUnknownStore    = errors.Sentinel(`unknown store`)
	ErrNoSources       = errors.Sentinel(`topology has no sources`)
	ErrTopologyChanged = errors.Sentinel(`topology changed since the snapshot`)
)
