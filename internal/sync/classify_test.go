package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"starbase/internal/model"
)

func baseRemoteAndLocal() (model.RemoteRepo, *model.Repository) {
	pushed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	remote := model.RemoteRepo{
		Owner: "acme", Name: "widget",
		Description:     "a widget",
		PrimaryLanguage: "Go",
		StargazerCount:  10,
		ForkCount:       2,
		PushedAt:        pushed,
		OwnerType:       model.OwnerUser,
		Archived:        false,
		Visibility:      "public",
	}
	local := &model.Repository{
		Owner: "acme", Name: "widget",
		Description:     "a widget",
		PrimaryLanguage: "Go",
		StargazerCount:  10,
		ForkCount:       2,
		PushedAt:        pushed,
		OwnerType:       model.OwnerUser,
		Archived:        false,
		Visibility:      "public",
	}
	return remote, local
}

func TestClassifyNoneWhenNothingChanged(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	assert.Equal(t, model.BucketNone, classify(remote, local))
}

func TestClassifyHeavyWhenPushedAtChanged(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.PushedAt = remote.PushedAt.Add(24 * time.Hour)
	assert.Equal(t, model.BucketHeavy, classify(remote, local))
}

func TestClassifyHeavyWhenLanguageMissingLocally(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	local.PrimaryLanguage = ""
	assert.Equal(t, model.BucketHeavy, classify(remote, local))
}

func TestClassifyLightAOnStargazerChange(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.StargazerCount = 99
	assert.Equal(t, model.BucketLightA, classify(remote, local))
}

func TestClassifyLightAOnForkCountChange(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.ForkCount = 99
	assert.Equal(t, model.BucketLightA, classify(remote, local))
}

func TestClassifyLightAOnArchivedChange(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.Archived = true
	assert.Equal(t, model.BucketLightA, classify(remote, local))
}

func TestClassifyLightAOnVisibilityChange(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.Visibility = "private"
	assert.Equal(t, model.BucketLightA, classify(remote, local))
}

func TestClassifyLightAOnOwnerTypeChange(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.OwnerType = model.OwnerOrg
	assert.Equal(t, model.BucketLightA, classify(remote, local))
}

func TestClassifyLightBOnDescriptionChange(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.Description = "a much better widget"
	assert.Equal(t, model.BucketLightB, classify(remote, local))
}

func TestClassifyLightBOnPrimaryLanguageChange(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.PrimaryLanguage = "Rust"
	assert.Equal(t, model.BucketLightB, classify(remote, local))
}

func TestClassifyHeavyTakesPrecedenceOverLight(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.PushedAt = remote.PushedAt.Add(time.Hour)
	remote.StargazerCount = 500
	remote.Description = "rewritten"
	assert.Equal(t, model.BucketHeavy, classify(remote, local))
}

func TestClassifyLightBTakesPrecedenceOverLightA(t *testing.T) {
	remote, local := baseRemoteAndLocal()
	remote.StargazerCount = 500
	remote.Description = "rewritten"
	assert.Equal(t, model.BucketLightB, classify(remote, local))
}
