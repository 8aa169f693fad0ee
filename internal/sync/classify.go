package sync

import "starbase/internal/model"

// classify buckets a repository observed in both the remote and local sets
// by comparing upstream fields, per the change-classification table. Pure
// and deterministic so it can be fully unit-tested without a store or
// network (spec §4.7, §8).
//
// Precedence when multiple triggers fire simultaneously: heavy first (it
// already re-fetches and re-embeds everything, making the lighter buckets
// redundant), then light-B over light-A, since light-B's action (re-embed)
// is a strict superset of light-A's (column overwrite only) — applying the
// stronger action loses no signal.
func classify(remote model.RemoteRepo, local *model.Repository) model.ChangeBucket {
	if heavyTriggered(remote, local) {
		return model.BucketHeavy
	}
	if lightBTriggered(remote, local) {
		return model.BucketLightB
	}
	if lightATriggered(remote, local) {
		return model.BucketLightA
	}
	return model.BucketNone
}

func heavyTriggered(remote model.RemoteRepo, local *model.Repository) bool {
	return !remote.PushedAt.Equal(local.PushedAt) || local.PrimaryLanguage == ""
}

func lightATriggered(remote model.RemoteRepo, local *model.Repository) bool {
	return remote.StargazerCount != local.StargazerCount ||
		remote.ForkCount != local.ForkCount ||
		remote.Archived != local.Archived ||
		remote.Visibility != local.Visibility ||
		remote.OwnerType != local.OwnerType
}

func lightBTriggered(remote model.RemoteRepo, local *model.Repository) bool {
	return remote.Description != local.Description || remote.PrimaryLanguage != local.PrimaryLanguage
}
