package offline

import (
	"github.com/sirupsen/logrus"

	"github.com/tiendafacil/ledger_backend/models"
)

// ResolveConflict reconciles a locally cached document with the server copy.
// server_wins is the default and the fallback for anything unrecognized.
// merge starts from the server copy and layers the named local fields on
// top; with no fields named it layers every local field. manual has no
// review queue behind it yet, so it logs and defers to the server copy.
func ResolveConflict(logger *logrus.Logger, local, server map[string]any, strategy models.ConflictStrategy, mergeFields []string) map[string]any {
	switch strategy {
	case models.ConflictClientWins:
		return cloneDoc(local)
	case models.ConflictMerge:
		merged := cloneDoc(server)
		if len(mergeFields) == 0 {
			for k, v := range local {
				merged[k] = v
			}
			return merged
		}
		for _, field := range mergeFields {
			if v, ok := local[field]; ok {
				merged[field] = v
			}
		}
		return merged
	case models.ConflictManual:
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"strategy": strategy,
			}).Warn("manual conflict resolution requested, keeping server copy")
		}
		return cloneDoc(server)
	default:
		return cloneDoc(server)
	}
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
