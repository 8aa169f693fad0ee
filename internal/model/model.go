// Package model holds the data types shared across starbase's components,
// kept import-cycle-free so store, sync, search, recommend, and graph can
// all depend on it without depending on each other.
package model

import "time"

// OwnerType classifies who owns a repository upstream.
type OwnerType string

const (
	OwnerOrg  OwnerType = "org"
	OwnerUser OwnerType = "user"
)

// EdgeKind classifies a graph edge.
type EdgeKind string

const (
	EdgeAuthor     EdgeKind = "author"
	EdgeEcosystem  EdgeKind = "ecosystem"
	EdgeCollection EdgeKind = "collection"
	EdgeSemantic   EdgeKind = "semantic"
)

// Repository is the core entity (R in the spec): a starred repository and
// everything sync/search/recommend need to know about it.
type Repository struct {
	ID int64

	Owner string
	Name  string // owner/name together form the immutable identity

	Description   string
	ReadmeSummary string
	PrimaryLanguage string
	Topics        []string
	Homepage      string

	StargazerCount int
	ForkCount      int

	CreatedAt time.Time
	PushedAt  time.Time
	StarredAt time.Time
	LastSyncedAt   time.Time
	LastAnalyzedAt time.Time

	OwnerType OwnerType
	Archived  bool
	Visibility string
	License    string

	Summary    string
	Categories []string
	Features   []string
	UseCases   []string

	IsDeleted bool
}

// FullName returns the immutable owner/name identity.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// RemoteRepo is the normalized shape the remote client yields per repository,
// independent of the upstream API's wire format.
type RemoteRepo struct {
	Owner           string
	Name            string
	Description     string
	Homepage        string
	PrimaryLanguage string
	Topics          []string
	StargazerCount  int
	ForkCount       int
	CreatedAt       time.Time
	PushedAt        time.Time
	StarredAt       time.Time
	OwnerType       OwnerType
	Archived        bool
	Visibility      string
	License         string
	ReadmeRaw       string // fetched lazily; empty unless the caller requested it
}

func (r RemoteRepo) FullName() string { return r.Owner + "/" + r.Name }

// GraphEdge is an undirected-in-meaning relationship stored directed.
type GraphEdge struct {
	Source   string
	Target   string
	Kind     EdgeKind
	Weight   float64
	Metadata map[string]interface{}
}

// SyncMode selects the reconciliation strategy (spec §4.7).
type SyncMode string

const (
	SyncIncremental  SyncMode = "incremental"
	SyncFull         SyncMode = "full"
	SyncFullReanalyze SyncMode = "full_reanalyze"
)

// ChangeBucket classifies how a common repository changed between remote
// and local observations (spec §4.7 change classification table).
type ChangeBucket string

const (
	BucketHeavy  ChangeBucket = "heavy"
	BucketLightA ChangeBucket = "light_a"
	BucketLightB ChangeBucket = "light_b"
	BucketNone   ChangeBucket = "none"
)

// HistoryEntry is an append-only sync run record (H in the spec).
type HistoryEntry struct {
	ID          int64
	Kind        SyncMode
	StartedAt   time.Time
	CompletedAt *time.Time
	Added       int
	Updated     int
	Deleted     int
	Failed      int
	ErrorMessage string
}

// Filters is the shared filter set accepted by list/search operations.
type Filters struct {
	Languages       []string
	MinStars        int
	StarredAfter    *time.Time
	OwnerType       OwnerType
	IsActive        *bool // pushed within 7 days
	IsNew           *bool // created within 6 months
	ExcludeArchived bool
	IsDeleted       *bool
}

// Embedding is the one-to-one vector record for a live repository (E).
type Embedding struct {
	RepoFullName string
	Vector       []float32
	Metadata     map[string]interface{}
	Text         string
}
