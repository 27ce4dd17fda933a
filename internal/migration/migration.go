// Package migration upgrades stored portal documents to the current schema.
//
// Each document carries a schemaVersion. Documents written before the field
// existed are version 0. A step in the chain upgrades exactly one version, so
// a document at version n runs steps n..CurrentVersion-1 in order. Documents
// from a future version are rejected instead of being silently misread.
package migration

import (
	"time"

	"github.com/twofly/client-portal-go/internal/domain"
)

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 2

// VersionKey is the document field holding the schema version.
const VersionKey = "schemaVersion"

// Step upgrades a raw document by one version in place.
type Step func(doc map[string]any, now time.Time)

// chain[i] upgrades a document from version i to i+1.
var chain = []Step{
	v0ToV1,
	v1ToV2,
}

// Version reads the schema version of a raw document. Missing or malformed
// values mean version 0.
func Version(doc map[string]any) int {
	switch v := doc[VersionKey].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Migrate upgrades doc from fromVersion to CurrentVersion. It reports whether
// anything changed so callers can persist the normalized form.
func Migrate(doc map[string]any, fromVersion int, now time.Time) (map[string]any, bool, error) {
	if fromVersion > CurrentVersion {
		return nil, false, &domain.ErrUnsupportedSchema{
			Document: "portal-state",
			Version:  fromVersion,
			Max:      CurrentVersion,
		}
	}
	if fromVersion < 0 {
		fromVersion = 0
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if fromVersion == CurrentVersion {
		return doc, false, nil
	}

	for v := fromVersion; v < CurrentVersion; v++ {
		chain[v](doc, now)
	}
	doc[VersionKey] = CurrentVersion
	return doc, true, nil
}

// v0ToV1 covers the shapes written before versioning existed:
// missing assets, requests with completedAt and no createdAt, needs without status.
func v0ToV1(doc map[string]any, now time.Time) {
	ensureList(doc, "assets")

	stamp := domain.FormatTimestamp(now)
	for _, r := range objects(doc, "requests") {
		if completed, ok := r["completedAt"]; ok {
			if _, has := r["doneAt"]; !has || r["doneAt"] == nil || r["doneAt"] == "" {
				r["doneAt"] = completed
			}
			delete(r, "completedAt")
		}
		if v, ok := r["createdAt"]; !ok || v == nil || v == "" {
			// Original creation time is unknown; ordering before this point is lost.
			r["createdAt"] = stamp
		}
	}

	for _, n := range objects(doc, "needs") {
		if v, ok := n["status"]; !ok || v == nil || v == "" {
			n["status"] = domain.StatusOpen
		}
	}
}

// v1ToV2 makes every collection and the kpis object present, so readers never
// branch on nil.
func v1ToV2(doc map[string]any, _ time.Time) {
	for _, key := range []string{"approvals", "needs", "requests", "assets", "activity"} {
		ensureList(doc, key)
	}
	for _, a := range objects(doc, "approvals") {
		ensureList(a, "change_notes")
		ensureList(a, "tags")
	}
	for _, a := range objects(doc, "assets") {
		ensureList(a, "tags")
	}
	if _, ok := doc["kpis"].(map[string]any); !ok {
		doc["kpis"] = map[string]any{
			"scheduled":       0,
			"waitingApproval": 0,
			"missingAssets":   0,
			"frustration":     0,
		}
	}
}

func ensureList(obj map[string]any, key string) {
	if _, ok := obj[key].([]any); !ok {
		obj[key] = []any{}
	}
}

// objects returns the map elements of obj[key], skipping anything else.
func objects(obj map[string]any, key string) []map[string]any {
	list, _ := obj[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
